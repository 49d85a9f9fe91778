package report

import (
	"fmt"
	"math"

	"github.com/kapu/pitch-coach-go/internal/analyzer"
	"github.com/kapu/pitch-coach-go/internal/constants"
	"github.com/kapu/pitch-coach-go/internal/domain"
	"github.com/kapu/pitch-coach-go/internal/util"
	"github.com/sourcegraph/conc/iter"
)

const (
	StrengthQuality  = "Good overall response quality"
	StrengthEvidence = "Used credible evidence and proof points"

	WeaknessInterest   = "Failed to maintain the prospect's interest"
	WeaknessObjections = "Struggled to handle objections"
	WeaknessTooShort   = "Conversation ended too quickly"
)

var weaknessAdvice = map[string]string{
	WeaknessInterest:   "Ask about the prospect's goals early and tie each point back to what they told you.",
	WeaknessObjections: "Acknowledge each objection, answer it with a specific example, then check whether it is resolved.",
	WeaknessTooShort:   "Keep the conversation going with open questions instead of stopping after your first pitch.",
}

// Summarize builds the end-of-session report from the transcript. Every user
// turn is re-analyzed, so stored analyses are not trusted. GeneratedAt is left
// for the caller to stamp.
func Summarize(transcript []domain.Turn, final domain.SessionState, p domain.PersonaProfile) domain.TrainingReport {
	var userTurns []string
	for _, turn := range transcript {
		if turn.Speaker == domain.SpeakerUser {
			userTurns = append(userTurns, turn.Text)
		}
	}

	analyses := iter.Map(userTurns, func(text *string) domain.InputAnalysis {
		return analyzer.Analyze(*text)
	})

	rep := domain.TrainingReport{
		SessionLength:     len(transcript),
		FinalEngagement:   final.Engagement,
		MaxChallengeLevel: util.Max(final.PeakChallenge, final.ChallengeLevel),
		Strengths:         []string{},
		Weaknesses:        []string{},
		Recommendations:   []string{},
	}

	if len(analyses) > 0 {
		total := 0
		credible := false
		for _, a := range analyses {
			total += a.OverallScore
			if a.Credibility >= constants.ReportConfig.CredibleTurn {
				credible = true
			}
		}
		avg := float64(total) / float64(len(analyses))
		rep.AverageResponseQuality = round1(avg)

		if avg >= constants.ReportConfig.GoodAverage {
			rep.Strengths = append(rep.Strengths, StrengthQuality)
		}
		if credible {
			rep.Strengths = append(rep.Strengths, StrengthEvidence)
		}
	}

	if final.Engagement == domain.EngagementCold {
		rep.Weaknesses = append(rep.Weaknesses, WeaknessInterest)
	}
	if final.ChallengeLevel < constants.ReportConfig.WeakChallenge {
		rep.Weaknesses = append(rep.Weaknesses, WeaknessObjections)
	}
	if len(transcript) < constants.ReportConfig.MinTurns {
		rep.Weaknesses = append(rep.Weaknesses, WeaknessTooShort)
	}

	for _, w := range rep.Weaknesses {
		rep.Recommendations = append(rep.Recommendations, weaknessAdvice[w])
	}
	rep.Recommendations = append(rep.Recommendations, personaRecommendation(p))

	return rep
}

func personaRecommendation(p domain.PersonaProfile) string {
	return fmt.Sprintf("With a %s: %s", p.Title, p.ChallengeStyle)
}

// WithHistory adds one insight comparing this session with the user's earlier
// roleplay reports against the same persona. Fewer than
// constants.ReportConfig.MinHistoryRecords prior reports leaves rep unchanged.
// The persona line stays last.
func WithHistory(rep domain.TrainingReport, prior []domain.PitchRecord) domain.TrainingReport {
	var sum float64
	n := 0
	for _, rec := range prior {
		if rec.Report == nil {
			continue
		}
		sum += rec.Report.AverageResponseQuality
		n++
	}
	if n < constants.ReportConfig.MinHistoryRecords {
		return rep
	}

	past := round1(sum / float64(n))
	var insight string
	switch {
	case rep.AverageResponseQuality > past:
		insight = fmt.Sprintf("Your average response quality of %.1f is up from %.1f across your last %d sessions with this persona.", rep.AverageResponseQuality, past, n)
	case rep.AverageResponseQuality < past:
		insight = fmt.Sprintf("Your average response quality of %.1f is below your %.1f average across your last %d sessions with this persona.", rep.AverageResponseQuality, past, n)
	default:
		insight = fmt.Sprintf("Your average response quality held steady at %.1f across your last %d sessions with this persona.", past, n)
	}

	out := rep
	recs := make([]string, 0, len(rep.Recommendations)+1)
	if len(rep.Recommendations) > 0 {
		recs = append(recs, rep.Recommendations[:len(rep.Recommendations)-1]...)
		recs = append(recs, insight, rep.Recommendations[len(rep.Recommendations)-1])
	} else {
		recs = append(recs, insight)
	}
	out.Recommendations = recs
	return out
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
