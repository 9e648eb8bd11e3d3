package correlate

import "math"

// Budget is the token accounting used to size prompts for a fixed
// context window. The estimator deliberately over-estimates: running
// out of context mid-response costs a whole batch, a slightly smaller
// prompt costs nothing.
type Budget struct {
	// ContextWindow is the model's total token capacity; MaxResponse is
	// reserved for the generated answer.
	ContextWindow int
	MaxResponse   int

	// CharsPerToken is the conservative chars-to-tokens ratio.
	CharsPerToken float64

	// EstimateBuffer is a flat token pad added to every estimate.
	EstimateBuffer int

	// TokensPerCorrelation is the response cost of one correlation
	// entry; JSONOverhead covers the wrapper around the entries.
	TokensPerCorrelation int
	JSONOverhead         int

	// MaxBatch hard-caps transmissions per request regardless of the
	// response budget.
	MaxBatch int

	// ADSBRatio is the share of the free prompt budget given to contact
	// lines; transmissions get the remainder.
	ADSBRatio float64
}

// EstimateTokens approximates the token count of s, rounding up and
// padding so the estimate never undershoots.
func (b Budget) EstimateTokens(s string) int {
	if s == "" {
		return b.EstimateBuffer
	}
	return int(math.Ceil(float64(len(s))/b.CharsPerToken)) + b.EstimateBuffer
}

// MaxPromptTokens is the prompt space left after reserving the response.
func (b Budget) MaxPromptTokens() int {
	return b.ContextWindow - b.MaxResponse
}

// MaxTransmissions caps the batch so the response itself cannot blow
// the token ceiling: each correlation entry costs tokens too.
func (b Budget) MaxTransmissions() int {
	byResponse := (b.MaxResponse - b.JSONOverhead) / b.TokensPerCorrelation
	if byResponse < 0 {
		byResponse = 0
	}
	if b.MaxBatch < byResponse {
		return b.MaxBatch
	}
	return byResponse
}

// Split divides the free prompt budget between contact and transmission
// lines.
func (b Budget) Split(free int) (contacts, transmissions int) {
	if free < 0 {
		free = 0
	}
	contacts = int(float64(free) * b.ADSBRatio)
	return contacts, free - contacts
}

// fillNewestFirst walks lines from the end (newest) and admits entries
// while their estimated cost fits the budget, up to maxItems. It
// returns the indices of admitted lines in original order. A maxItems
// of -1 means no count cap.
func fillNewestFirst(lines []string, budget, maxItems int, estimate func(string) int) []int {
	var picked []int
	remaining := budget
	for i := len(lines) - 1; i >= 0; i-- {
		if maxItems >= 0 && len(picked) >= maxItems {
			break
		}
		cost := estimate(lines[i])
		if cost > remaining {
			break
		}
		remaining -= cost
		picked = append(picked, i)
	}
	// Reverse into original order.
	for l, r := 0, len(picked)-1; l < r; l, r = l+1, r-1 {
		picked[l], picked[r] = picked[r], picked[l]
	}
	return picked
}
