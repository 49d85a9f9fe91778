package domain

// FeedbackResult is the coach's structured verdict on a single pitch.
type FeedbackResult struct {
	Confidence     float64 `json:"confidence"`
	Clarity        float64 `json:"clarity"`
	Structure      float64 `json:"structure"`
	Authenticity   float64 `json:"authenticity"`
	Persuasiveness float64 `json:"persuasiveness"`
	StrongestLine  string  `json:"strongestLine"`
	WeakestLine    string  `json:"weakestLine"`
	Comments       string  `json:"comments"`
}
