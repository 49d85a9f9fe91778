package domain

// PersonaProfile describes a synthetic buyer the user practices against.
type PersonaProfile struct {
	Key             string   `json:"key"`
	Title           string   `json:"title"`
	Mindset         string   `json:"mindset"`
	Concerns        []string `json:"concerns"`
	Behavior        string   `json:"behavior"`
	Triggers        string   `json:"triggers"`
	ChallengeStyle  string   `json:"challengeStyle"`
	Difficulty      int      `json:"difficulty"`
	CannedResponses []string `json:"cannedResponses"`
}

// Clone returns a deep copy so callers cannot mutate catalog slices.
func (p PersonaProfile) Clone() PersonaProfile {
	out := p
	out.Concerns = append([]string(nil), p.Concerns...)
	out.CannedResponses = append([]string(nil), p.CannedResponses...)
	return out
}

// CoachTone is the voice used by the one-shot feedback coach.
type CoachTone struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}
