package domain

import (
	"fmt"
	"time"
)

type EngagementLevel string

const (
	EngagementCold    EngagementLevel = "cold"
	EngagementNeutral EngagementLevel = "neutral"
	EngagementWarm    EngagementLevel = "warm"
	EngagementHot     EngagementLevel = "hot"
)

var engagementLadder = []EngagementLevel{EngagementCold, EngagementNeutral, EngagementWarm, EngagementHot}

// Rank is the position on the cold..hot ladder; unknown values rank as neutral.
func (e EngagementLevel) Rank() int {
	for i, lvl := range engagementLadder {
		if lvl == e {
			return i
		}
	}
	return 1
}

// Step moves delta rungs along the ladder, saturating at both ends.
func (e EngagementLevel) Step(delta int) EngagementLevel {
	idx := e.Rank() + delta
	if idx < 0 {
		idx = 0
	}
	if idx >= len(engagementLadder) {
		idx = len(engagementLadder) - 1
	}
	return engagementLadder[idx]
}

func (e EngagementLevel) IsValid() bool {
	switch e {
	case EngagementCold, EngagementNeutral, EngagementWarm, EngagementHot:
		return true
	default:
		return false
	}
}

type ConversationPhase string

const (
	PhaseDiscovery         ConversationPhase = "discovery"
	PhasePresentation      ConversationPhase = "presentation"
	PhaseObjectionHandling ConversationPhase = "objection_handling"
	PhaseClosing           ConversationPhase = "closing"
	PhaseEnded             ConversationPhase = "ended"
)

// Order is the phase's position in the forward-only progression.
func (p ConversationPhase) Order() int {
	switch p {
	case PhaseDiscovery:
		return 0
	case PhasePresentation:
		return 1
	case PhaseObjectionHandling:
		return 2
	case PhaseClosing:
		return 3
	case PhaseEnded:
		return 4
	default:
		return 0
	}
}

type Speaker string

const (
	SpeakerUser     Speaker = "user"
	SpeakerProspect Speaker = "prospect"
)

type Turn struct {
	Speaker  Speaker        `json:"speaker"`
	Text     string         `json:"text"`
	Analysis *InputAnalysis `json:"analysis,omitempty"`
	Source   ReplySource    `json:"source,omitempty"`
}

// ReplySource records where a prospect line came from.
type ReplySource string

const (
	SourceModel    ReplySource = "model"
	SourceCanned   ReplySource = "canned"
	SourceConcern  ReplySource = "concern"
	SourceFallback ReplySource = "fallback"
)

// SessionState is one roleplay session. It is passed by value through the state
// machine and stored whole after every turn.
type SessionState struct {
	ID             string            `json:"id"`
	UserID         string            `json:"userId,omitempty"`
	PersonaKey     string            `json:"persona"`
	Engagement     EngagementLevel   `json:"engagementLevel"`
	ChallengeLevel int               `json:"challengeLevel"`
	PeakChallenge  int               `json:"peakChallengeLevel"`
	Phase          ConversationPhase `json:"conversationPhase"`
	TurnCount      int               `json:"turnCount"`
	Transcript     []Turn            `json:"transcript"`
	Generation     int64             `json:"generation"`
	RecentCanned   []string          `json:"recentCanned,omitempty"`
	Report         *TrainingReport   `json:"report,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

// NewSessionState returns the starting state: neutral, challenge 1, discovery.
func NewSessionState(id, personaKey string, now time.Time) SessionState {
	return SessionState{
		ID:             id,
		PersonaKey:     personaKey,
		Engagement:     EngagementNeutral,
		ChallengeLevel: 1,
		PeakChallenge:  1,
		Phase:          PhaseDiscovery,
		Transcript:     []Turn{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (s SessionState) Ended() bool {
	return s.Phase == PhaseEnded
}

// Clone copies the slices so the caller can mutate the result freely.
func (s SessionState) Clone() SessionState {
	out := s
	out.Transcript = append([]Turn(nil), s.Transcript...)
	out.RecentCanned = append([]string(nil), s.RecentCanned...)
	return out
}

// RecentProspectTurns returns up to n of the latest prospect lines, newest last.
func (s SessionState) RecentProspectTurns(n int) []string {
	out := make([]string, 0, n)
	for i := len(s.Transcript) - 1; i >= 0 && len(out) < n; i-- {
		if s.Transcript[i].Speaker == SpeakerProspect {
			out = append(out, s.Transcript[i].Text)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func (s SessionState) String() string {
	return fmt.Sprintf("session[%s persona=%s turn=%d phase=%s engagement=%s challenge=%d]",
		s.ID, s.PersonaKey, s.TurnCount, s.Phase, s.Engagement, s.ChallengeLevel)
}
