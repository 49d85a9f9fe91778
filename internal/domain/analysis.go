package domain

// InputAnalysis is the heuristic score of one user message.
type InputAnalysis struct {
	Quality          int      `json:"quality"`
	Specificity      int      `json:"specificity"`
	ValueProposition int      `json:"valueProposition"`
	Credibility      int      `json:"credibility"`
	Engagement       int      `json:"engagement"`
	Insights         []string `json:"insights"`
	OverallScore     int      `json:"overallScore"`
}

// Total is the unclamped sum of the sub-scores.
func (a InputAnalysis) Total() int {
	return a.Quality + a.Specificity + a.ValueProposition + a.Credibility + a.Engagement
}
