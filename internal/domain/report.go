package domain

import "time"

type TrainingReport struct {
	SessionLength          int             `json:"sessionLength"`
	FinalEngagement        EngagementLevel `json:"finalEngagement"`
	MaxChallengeLevel      int             `json:"maxChallengeLevel"`
	AverageResponseQuality float64         `json:"averageResponseQuality"`
	Strengths              []string        `json:"strengths"`
	Weaknesses             []string        `json:"weaknesses"`
	Recommendations        []string        `json:"recommendations"`
	GeneratedAt            time.Time       `json:"generatedAt"`
}
