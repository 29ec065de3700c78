package retrieval

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"

	"github.com/fyrsmithlabs/ragd/internal/memory"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

const systemPreamble = `You are a helpful assistant that answers questions using only the retrieved document context below.

Rules:
1. Answer using only the information in the retrieved context.
2. If the context does not contain the answer, say you do not know based on the uploaded documents.
3. Cite the source document when it helps the user verify the answer.
4. Keep answers concise and factual. Do not invent details.`

const (
	contextHeader = "--- RETRIEVED CONTEXT ---"
	historyHeader = "--- CONVERSATION HISTORY ---"
	chunkJoiner   = "\n\n---\n\n"
)

// TokenCounter measures prompt text against the context budget.
type TokenCounter interface {
	Count(text string) int
}

// TiktokenCounter counts tokens with the cl100k_base BPE, loaded from
// the embedded offline dictionary so no network fetch happens at
// startup.
type TiktokenCounter struct {
	encoding *tiktoken.Tiktoken
}

// NewTiktokenCounter initializes the cl100k_base encoding.
func NewTiktokenCounter() (*TiktokenCounter, error) {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	encoding, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("load cl100k_base encoding: %w", err)
	}
	return &TiktokenCounter{encoding: encoding}, nil
}

func (c *TiktokenCounter) Count(text string) int {
	return len(c.encoding.Encode(text, nil, nil))
}

// HeuristicCounter approximates tokens as len/4. Used when the BPE
// dictionary cannot be loaded.
type HeuristicCounter struct{}

func (HeuristicCounter) Count(text string) int {
	return (len(text) + 3) / 4
}

// Prompt is the assembled input for one generation call.
type Prompt struct {
	System string
	User   string
}

// ContextBuilder assembles the system and user prompts from retrieved
// chunks and conversation history, trimming to a token budget.
type ContextBuilder struct {
	counter TokenCounter
	budget  int
	// ResolveFilename maps a document id to a display name for source
	// attribution. Nil falls back to the raw id.
	ResolveFilename func(documentID string) string
}

// NewContextBuilder creates a builder with the given token budget.
func NewContextBuilder(counter TokenCounter, budget int) *ContextBuilder {
	if counter == nil {
		counter = HeuristicCounter{}
	}
	if budget <= 0 {
		budget = 6000
	}
	return &ContextBuilder{counter: counter, budget: budget}
}

// Build assembles the prompt. When the full prompt exceeds the budget
// it drops the oldest history turns first, then the lowest-ranked
// chunks. The top-ranked chunk is never dropped.
func (b *ContextBuilder) Build(question string, history []memory.Turn, hits []vectorstore.Hit) Prompt {
	for {
		prompt := b.assemble(question, history, hits)
		if b.counter.Count(prompt.System)+b.counter.Count(prompt.User) <= b.budget {
			return prompt
		}
		if len(history) > 0 {
			history = history[1:]
			continue
		}
		if len(hits) > 1 {
			hits = hits[:len(hits)-1]
			continue
		}
		return prompt
	}
}

func (b *ContextBuilder) assemble(question string, history []memory.Turn, hits []vectorstore.Hit) Prompt {
	var sb strings.Builder
	sb.WriteString(systemPreamble)

	if len(hits) > 0 {
		sb.WriteString("\n\n")
		sb.WriteString(contextHeader)
		sb.WriteString("\n")
		blocks := make([]string, 0, len(hits))
		for _, hit := range hits {
			blocks = append(blocks, fmt.Sprintf("[Source: %s | %s]\n%s",
				b.filename(hit.Chunk.DocumentID), hit.Chunk.ID, hit.Chunk.Text))
		}
		sb.WriteString(strings.Join(blocks, chunkJoiner))
	}

	if len(history) > 0 {
		sb.WriteString("\n\n")
		sb.WriteString(historyHeader)
		sb.WriteString("\n")
		lines := make([]string, 0, len(history))
		for _, turn := range history {
			label := "Human"
			if turn.Role == memory.RoleAssistant {
				label = "Assistant"
			}
			lines = append(lines, fmt.Sprintf("%s: %s", label, turn.Content))
		}
		sb.WriteString(strings.Join(lines, "\n"))
	}

	return Prompt{System: sb.String(), User: question}
}

func (b *ContextBuilder) filename(documentID string) string {
	if b.ResolveFilename == nil {
		return documentID
	}
	if name := b.ResolveFilename(documentID); name != "" {
		return name
	}
	return documentID
}

// Sources derives provenance records, in rank order, from the hits fed
// into a prompt.
func (b *ContextBuilder) Sources(hits []vectorstore.Hit) []memory.Source {
	sources := make([]memory.Source, 0, len(hits))
	for _, hit := range hits {
		preview := truncateRunes(hit.Chunk.Text, 150)
		sources = append(sources, memory.Source{
			Document:       b.filename(hit.Chunk.DocumentID),
			ChunkID:        hit.Chunk.ID,
			ContentPreview: preview,
		})
	}
	return sources
}

// truncateRunes cuts s to at most max bytes without splitting a rune.
func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
