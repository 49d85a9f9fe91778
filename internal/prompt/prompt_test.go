package prompt

import (
	"strings"
	"testing"
	"time"

	"github.com/kapu/pitch-coach-go/internal/domain"
	"github.com/kapu/pitch-coach-go/internal/persona"
)

func TestRoleplaySystemContainsPersonaAndState(t *testing.T) {
	p := persona.Get(persona.KeyBudget)
	state := domain.NewSessionState("s", p.Key, time.Unix(0, 0))
	state.Engagement = domain.EngagementWarm
	state.Phase = domain.PhasePresentation
	state.ChallengeLevel = 3

	text := BuildRoleplaySystem(NewRoleplayVars(p, state, "  We cut costs by 20%.  "))

	for _, want := range []string{
		p.Title,
		p.Mindset,
		p.Concerns[0],
		p.Behavior,
		"Engagement: warm",
		"Phase: presentation",
		"Challenge level: 3",
		`"We cut costs by 20%."`,
		`Never say "How can I help you"`,
		"2 sentences or fewer",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("prompt missing %q:\n%s", want, text)
		}
	}
}

func TestFallbackRoleplayMatchesEssentials(t *testing.T) {
	p := persona.Get(persona.KeyNew)
	vars := NewRoleplayVars(p, domain.NewSessionState("s", p.Key, time.Unix(0, 0)), "hello there")
	text := FallbackRoleplaySystem(vars)
	if !strings.Contains(text, p.Title) || !strings.Contains(text, "How can I help you") || !strings.Contains(text, "hello there") {
		t.Fatalf("fallback prompt incomplete: %s", text)
	}
}

func TestRoleplayMessagesMapsSpeakers(t *testing.T) {
	p := persona.Get(persona.KeyDecision)
	state := domain.NewSessionState("s", p.Key, time.Unix(0, 0))
	state.Transcript = []domain.Turn{
		{Speaker: domain.SpeakerUser, Text: "pitch one"},
		{Speaker: domain.SpeakerProspect, Text: "reply one"},
		{Speaker: domain.SpeakerUser, Text: "pitch two"},
	}

	msgs := RoleplayMessages(p, state, "pitch two")
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}
	want := []domain.Role{domain.RoleSystem, domain.RoleUser, domain.RoleAssistant, domain.RoleUser}
	for i, role := range want {
		if msgs[i].Role != role {
			t.Errorf("message %d role = %s, want %s", i, msgs[i].Role, role)
		}
	}
}

func TestFeedbackMessages(t *testing.T) {
	msgs := FeedbackMessages(persona.Tone("tough"), persona.Get(persona.KeyExecutive), " Buy our CRM. ")
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	want := "You are an AI sales coach acting as a Tough Coach coach. Analyze the user's sales pitch as if they were pitching to a Time-Crunched Executive and return a JSON object with confidence, clarity, structure, authenticity, persuasiveness (rated 1-10), strongestLine, weakestLine, and comments."
	if msgs[0].Content != want {
		t.Fatalf("system prompt:\n%s\nwant:\n%s", msgs[0].Content, want)
	}
	if msgs[1].Content != "Sales Pitch: Buy our CRM." {
		t.Fatalf("user prompt = %q", msgs[1].Content)
	}
	if msgs[0].Content != FallbackFeedbackSystem(FeedbackVars{ToneLabel: "Tough Coach", PersonaTitle: "Time-Crunched Executive"}) {
		t.Fatal("template and fallback drifted apart")
	}
}

func TestSystemTemplatesRender(t *testing.T) {
	p := persona.Get(persona.KeySkeptical)
	state := domain.NewSessionState("s", p.Key, time.Unix(0, 0))

	roleplay, err := renderRoleplay(NewRoleplayVars(p, state, "Hello"))
	if err != nil {
		t.Fatalf("roleplay template: %v", err)
	}
	if !strings.Contains(roleplay, "Main concerns:") {
		t.Fatalf("roleplay prompt did not come from the template:\n%s", roleplay)
	}

	fb, err := renderFeedback(FeedbackVars{ToneLabel: "Peer", PersonaTitle: p.Title})
	if err != nil {
		t.Fatalf("feedback template: %v", err)
	}
	if !strings.HasPrefix(fb, "You are an AI sales coach acting as a Peer coach.") {
		t.Fatalf("unexpected feedback prompt %q", fb)
	}
}
