package persona

import (
	"strings"

	"github.com/kapu/pitch-coach-go/internal/domain"
)

const DefaultToneKey = "friendly"

var tones = []domain.CoachTone{
	{Key: "friendly", Label: "Friendly Mentor"},
	{Key: "tough", Label: "Tough Coach"},
	{Key: "peer", Label: "Peer-Level Trainer"},
	{Key: "closer", Label: "Closer"},
	{Key: "best", Label: "Best Salesman in the World"},
}

// Tone resolves a coach tone key, defaulting to the friendly mentor.
func Tone(key string) domain.CoachTone {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, t := range tones {
		if t.Key == key {
			return t
		}
	}
	return tones[0]
}

func Tones() []domain.CoachTone {
	return append([]domain.CoachTone(nil), tones...)
}
