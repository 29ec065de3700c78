package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/chat"
	"github.com/fyrsmithlabs/ragd/internal/logging"
)

// handleChatStream streams a chat response as server-sent events, one
// JSON frame per event.
func (s *Server) handleChatStream(c echo.Context) error {
	var req chat.Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx := logging.WithRequestID(c.Request().Context(), c.Response().Header().Get(echo.HeaderXRequestID))

	events, err := s.orch.Stream(ctx, req)
	if err != nil {
		return httpError(err)
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	for ev := range events {
		if err := writeSSE(resp, ev); err != nil {
			// Client went away; the pipeline sees the context cancel.
			s.logger.Debug(ctx, "sse write failed", zap.Error(err))
			return nil
		}
	}
	return nil
}

// writeSSE emits one event as a data frame and flushes it.
func writeSSE(resp *echo.Response, ev chat.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(resp, "data: %s\n\n", payload); err != nil {
		return err
	}
	resp.Flush()
	return nil
}

// handleChatSync returns the full buffered answer in one JSON body.
func (s *Server) handleChatSync(c echo.Context) error {
	var req chat.Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx := logging.WithRequestID(c.Request().Context(), c.Response().Header().Get(echo.HeaderXRequestID))

	resp, err := s.orch.Ask(ctx, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

// handleIngest accepts a multipart file upload and runs the ingest
// pipeline synchronously.
func (s *Server) handleIngest(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file field is required")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot read uploaded file")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot read uploaded file")
	}

	doc, err := s.ingestSvc.Ingest(c.Request().Context(), fileHeader.Filename, data)
	if err != nil {
		s.logger.Warn(c.Request().Context(), "ingest rejected",
			zap.String("filename", fileHeader.Filename), zap.Error(err))
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, IngestResponse{
		Success:    true,
		DocumentID: doc.ID,
		Filename:   doc.Filename,
		ChunkCount: doc.ChunkCount,
		Message:    fmt.Sprintf("ingested %s into %d chunks", doc.Filename, doc.ChunkCount),
	})
}

// IngestResponse is the response body for POST /api/ingest.
type IngestResponse struct {
	Success    bool   `json:"success"`
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	ChunkCount int    `json:"chunk_count"`
	Message    string `json:"message"`
}

func (s *Server) handleListDocuments(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"documents": s.docs.List(),
		"count":     s.docs.Count(),
	})
}

func (s *Server) handleGetDocument(c echo.Context) error {
	doc, err := s.docs.Get(c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(c echo.Context) error {
	doc, err := s.ingestSvc.Delete(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"deleted": doc.ID,
	})
}

// ClearSessionRequest is the request body for POST /api/session/clear.
type ClearSessionRequest struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleClearSession(c echo.Context) error {
	var req ClearSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.SessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id is required")
	}

	cleared := s.sessions.Clear(req.SessionID)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"session_id": req.SessionID,
		"cleared":    cleared,
	})
}

func (s *Server) handleListSessions(c echo.Context) error {
	ids := s.sessions.ListActive()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"sessions": ids,
		"count":    len(ids),
	})
}

func (s *Server) handleClearAllSessions(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"cleared": s.sessions.ClearAll(),
	})
}
