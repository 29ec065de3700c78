package retrieval

// RefusalText is streamed in place of a generated answer when no
// retrieved evidence clears the score threshold.
const RefusalText = "I do not have knowledge of this based on the uploaded documents."

// Decision is the outcome of the confidence guard.
type Decision struct {
	// Accept reports whether generation may proceed.
	Accept bool
	// Confidence is the top retrieval score clamped to [0, 1], or 0
	// when nothing survived the threshold.
	Confidence float64
}

// Evaluate gates generation on retrieval evidence. Any surviving hit
// accepts; an empty result refuses.
func Evaluate(result Result) Decision {
	if len(result.Hits) == 0 {
		return Decision{Accept: false, Confidence: 0}
	}

	confidence := float64(result.TopScore)
	if confidence > 1 {
		confidence = 1
	}
	if confidence < 0 {
		confidence = 0
	}
	return Decision{Accept: true, Confidence: confidence}
}
