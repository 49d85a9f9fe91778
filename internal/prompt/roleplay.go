package prompt

import (
	"fmt"
	"strings"

	"github.com/kapu/pitch-coach-go/internal/constants"
	"github.com/kapu/pitch-coach-go/internal/domain"
)

// RoleplayVars feeds the roleplay system template.
type RoleplayVars struct {
	Title          string
	Mindset        string
	Concerns       []string
	Behavior       string
	Triggers       string
	ChallengeStyle string
	Engagement     domain.EngagementLevel
	Phase          domain.ConversationPhase
	ChallengeLevel int
	TurnCount      int
	Guidance       string
	UserMessage    string
	BannedPhrase   string
	MaxSentences   int
}

// NewRoleplayVars collects the persona and session values for one turn.
func NewRoleplayVars(p domain.PersonaProfile, state domain.SessionState, userMessage string) RoleplayVars {
	return RoleplayVars{
		Title:          p.Title,
		Mindset:        p.Mindset,
		Concerns:       p.Concerns,
		Behavior:       p.Behavior,
		Triggers:       p.Triggers,
		ChallengeStyle: p.ChallengeStyle,
		Engagement:     state.Engagement,
		Phase:          state.Phase,
		ChallengeLevel: state.ChallengeLevel,
		TurnCount:      state.TurnCount,
		Guidance:       phaseGuidance(state.Phase, state.Engagement),
		UserMessage:    strings.TrimSpace(userMessage),
		BannedPhrase:   constants.ReplyValidation.BannedPhrase,
		MaxSentences:   constants.ReplyValidation.MaxReplySentences,
	}
}

func phaseGuidance(phase domain.ConversationPhase, engagement domain.EngagementLevel) string {
	switch phase {
	case domain.PhaseDiscovery:
		return "You are still deciding whether this conversation is worth your time."
	case domain.PhasePresentation:
		return "Ask for specifics about how this would work for you."
	case domain.PhaseObjectionHandling:
		return "Press on your strongest objection."
	case domain.PhaseClosing:
		if engagement == domain.EngagementHot {
			return "You are close to agreeing; ask about next steps."
		}
		return "Signal what it would take for you to move forward."
	case domain.PhaseEnded:
		return "Wrap up the conversation politely and briefly."
	}
	return ""
}

// BuildRoleplaySystem renders the system instruction for the prospect's next
// reply. A template failure falls back to a plain formatted prompt.
func BuildRoleplaySystem(vars RoleplayVars) string {
	text, err := renderRoleplay(vars)
	if err == nil && text != "" {
		return text
	}
	return FallbackRoleplaySystem(vars)
}

func FallbackRoleplaySystem(vars RoleplayVars) string {
	return fmt.Sprintf(`You are roleplaying as a %s. Mindset: %s Concerns: %s. Behavior: %s
Engagement: %s. Phase: %s. Challenge level: %d of 5.
The salesperson just said: "%s"
Reply in %d sentences or fewer and never say "%s".`,
		vars.Title,
		vars.Mindset,
		strings.Join(vars.Concerns, "; "),
		vars.Behavior,
		vars.Engagement,
		vars.Phase,
		vars.ChallengeLevel,
		vars.UserMessage,
		vars.MaxSentences,
		vars.BannedPhrase,
	)
}

// RoleplayMessages builds the full completion request: the system
// instruction followed by the transcript, with user turns as "user" and
// prospect turns as "assistant".
func RoleplayMessages(p domain.PersonaProfile, state domain.SessionState, userMessage string) []domain.ChatMessage {
	messages := make([]domain.ChatMessage, 0, len(state.Transcript)+1)
	messages = append(messages, domain.ChatMessage{
		Role:    domain.RoleSystem,
		Content: BuildRoleplaySystem(NewRoleplayVars(p, state, userMessage)),
	})
	for _, turn := range state.Transcript {
		role := domain.RoleUser
		if turn.Speaker == domain.SpeakerProspect {
			role = domain.RoleAssistant
		}
		messages = append(messages, domain.ChatMessage{Role: role, Content: turn.Text})
	}
	return messages
}
