package session

import (
	"github.com/kapu/pitch-coach-go/internal/domain"
	"github.com/kapu/pitch-coach-go/internal/persona"
	"github.com/kapu/pitch-coach-go/internal/util"
)

// Engagement thresholds on the combined score.
const (
	WarmUpThreshold   = 8
	CoolDownThreshold = 2
)

// Challenge thresholds on the analyzer's overall score.
const (
	ChallengeUpScore   = 7
	ChallengeDownScore = 2
	MinChallenge       = 1
	MaxChallenge       = 5
)

// Phase boundaries, in turns.
const (
	discoveryTurns    = 2
	presentationTurns = 4
	coldEndAfter      = 3
	hardEndAfter      = 8
	hardDifficulty    = 4
	closingAfter      = 6
)

// Advance computes the state after one more user turn. It does not touch the
// transcript; it only moves the counters, engagement, phase and challenge.
func Advance(state domain.SessionState, analysis domain.InputAnalysis, p domain.PersonaProfile) domain.SessionState {
	next := state.Clone()
	next.TurnCount = state.TurnCount + 1

	if state.Phase == domain.PhaseEnded {
		return next
	}

	next.Engagement = nextEngagement(state.Engagement, EngagementScore(analysis, p))
	next.ChallengeLevel = nextChallenge(state.ChallengeLevel, analysis.OverallScore)
	next.PeakChallenge = util.Max(state.PeakChallenge, next.ChallengeLevel)
	next.Phase = nextPhase(state.Phase, next.Engagement, next.TurnCount, p.Difficulty)

	return next
}

// EngagementScore is the overall score plus the persona-specific weighting.
func EngagementScore(a domain.InputAnalysis, p domain.PersonaProfile) int {
	score := a.OverallScore

	switch p.Key {
	case persona.KeySkeptical:
		score += 2*a.Credibility - 3
	case persona.KeyDecision:
		score += a.Specificity + a.ValueProposition
	case persona.KeyTechnical:
		score += 2 * a.Specificity
	case persona.KeyBudget:
		score += 2 * a.ValueProposition
	case persona.KeyExecutive:
		if a.Quality < 2 {
			score -= 3
		} else {
			score += a.Quality / 2
		}
	case persona.KeyEmotional:
		score += a.Engagement
	case persona.KeyCompetitor:
		score -= 2
	case persona.KeyWarm:
		score += 2
	default:
		score += a.Engagement / 2
	}

	return score
}

func nextEngagement(current domain.EngagementLevel, score int) domain.EngagementLevel {
	if !current.IsValid() {
		current = domain.EngagementNeutral
	}
	switch {
	case score >= WarmUpThreshold:
		return current.Step(1)
	case score <= CoolDownThreshold:
		return current.Step(-1)
	default:
		return current
	}
}

func nextChallenge(current, overall int) int {
	switch {
	case overall >= ChallengeUpScore:
		current++
	case overall <= ChallengeDownScore:
		current--
	}
	return util.Clamp(current, MinChallenge, MaxChallenge)
}

func nextPhase(prev domain.ConversationPhase, engagement domain.EngagementLevel, turn, difficulty int) domain.ConversationPhase {
	if prev == domain.PhaseEnded {
		return domain.PhaseEnded
	}

	var candidate domain.ConversationPhase
	switch {
	case turn <= discoveryTurns:
		candidate = domain.PhaseDiscovery
	case engagement == domain.EngagementCold && turn > coldEndAfter:
		candidate = domain.PhaseEnded
	case difficulty >= hardDifficulty && turn > hardEndAfter:
		candidate = domain.PhaseEnded
	case engagement == domain.EngagementHot && turn > closingAfter:
		candidate = domain.PhaseClosing
	case turn <= presentationTurns:
		candidate = domain.PhasePresentation
	default:
		candidate = domain.PhaseObjectionHandling
	}

	if candidate.Order() < prev.Order() {
		return prev
	}
	return candidate
}
