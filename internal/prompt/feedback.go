package prompt

import (
	"fmt"
	"strings"

	"github.com/kapu/pitch-coach-go/internal/domain"
)

type FeedbackVars struct {
	ToneLabel    string
	PersonaTitle string
}

// FeedbackMessages builds the coaching request for a single pitch.
func FeedbackMessages(tone domain.CoachTone, p domain.PersonaProfile, pitch string) []domain.ChatMessage {
	vars := FeedbackVars{ToneLabel: tone.Label, PersonaTitle: p.Title}
	system, err := renderFeedback(vars)
	if err != nil || system == "" {
		system = FallbackFeedbackSystem(vars)
	}

	return []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: system},
		{Role: domain.RoleUser, Content: "Sales Pitch: " + strings.TrimSpace(pitch)},
	}
}

func FallbackFeedbackSystem(vars FeedbackVars) string {
	return fmt.Sprintf("You are an AI sales coach acting as a %s coach. Analyze the user's sales pitch as if they were pitching to a %s and return a JSON object with confidence, clarity, structure, authenticity, persuasiveness (rated 1-10), strongestLine, weakestLine, and comments.",
		vars.ToneLabel, vars.PersonaTitle)
}
