package session

import "unicode/utf8"

// DefaultContextTokens is the budget used when a caller supplies none.
const DefaultContextTokens = 4000

// Window is the bounded slice of a session handed to generation: the
// summary plus the longest suffix of turns that fits the token budget.
type Window struct {
	Summary string
	Turns   []Turn
}

// EstimateTokens approximates the token cost of text as a third of its
// rune count.
func EstimateTokens(text string) float64 {
	return float64(utf8.RuneCountInString(text)) / 3
}

// BuildWindow projects s onto a budget of maxTokens. It scans from the most
// recent turn backwards and stops before the first turn that would push the
// running cost, summary included, past the budget. maxTokens <= 0 selects
// DefaultContextTokens.
func BuildWindow(s *State, maxTokens int) Window {
	if maxTokens <= 0 {
		maxTokens = DefaultContextTokens
	}
	if s == nil {
		return Window{Turns: []Turn{}}
	}
	budget := float64(maxTokens)
	used := EstimateTokens(s.Summary)
	start := len(s.Turns)
	for i := len(s.Turns) - 1; i >= 0; i-- {
		used += EstimateTokens(s.Turns[i].Content)
		if used > budget {
			break
		}
		start = i
	}
	return Window{
		Summary: s.Summary,
		Turns:   append(make([]Turn, 0, len(s.Turns)-start), s.Turns[start:]...),
	}
}
