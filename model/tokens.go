package model

// TokenEstimator estimates how many tokens a request will consume, used to
// size credential borrowing before the actual invocation.
type TokenEstimator func(messages []Message) int

// EstimateTokens is the default TokenEstimator. It uses the common
// four-characters-per-token heuristic over all textual content plus a small
// fixed overhead per message for role and framing tokens. It intentionally
// overestimates slightly; the loop adds its own completion buffer on top.
func EstimateTokens(messages []Message) int {
	const (
		charsPerToken      = 4
		perMessageOverhead = 4
	)
	total := 0
	for _, m := range messages {
		chars := len(m.Text)
		for _, tc := range m.ToolCalls {
			chars += len(tc.Name) + len(tc.Arguments)
		}
		total += chars/charsPerToken + perMessageOverhead
	}
	return total
}
