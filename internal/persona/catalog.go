package persona

import (
	"strings"

	"github.com/kapu/pitch-coach-go/internal/domain"
)

const (
	KeyNew        = "new"
	KeyDecision   = "decision"
	KeySkeptical  = "skeptical"
	KeyExecutive  = "executive"
	KeyBudget     = "budget"
	KeyTechnical  = "technical"
	KeyEmotional  = "emotional"
	KeyWarm       = "warm"
	KeyCompetitor = "competitor"

	// DefaultKey is returned for any unrecognized persona key.
	DefaultKey = KeyNew
)

var newPersona = domain.PersonaProfile{
	Key:     KeyNew,
	Title:   "Completely New Person",
	Mindset: "Has never heard of you or your product and is mildly curious but guarded about being sold to.",
	Concerns: []string{
		"I don't really understand what you're offering yet",
		"Why should I trust a company I've never heard of",
		"I'm not sure this is even relevant to me",
	},
	Behavior:       "Asks basic clarifying questions and drifts off quickly when the pitch gets vague.",
	Triggers:       "Jargon, pushy urgency, and answers that dodge simple questions.",
	ChallengeStyle: "Keep your explanation simple and concrete, lead with a clear one-line description of what you do before diving into features.",
	Difficulty:     2,
	CannedResponses: []string{
		"Sorry, I'm still not sure what it is you actually do.",
		"Okay, but who is this really for?",
		"I've never heard of your company. Why should I listen?",
		"Can you explain that in plain English?",
		"I don't see how this applies to me yet.",
	},
}

var decisionPersona = domain.PersonaProfile{
	Key:     KeyDecision,
	Title:   "Decision Maker",
	Mindset: "Owns the budget and the outcome, wants to know what changes for the business and how fast.",
	Concerns: []string{
		"What measurable impact will this have on our numbers",
		"How long until we see a return on this investment",
		"Who else like us is already using it successfully",
	},
	Behavior:       "Direct and results-oriented, cuts tangents short and pushes for specifics and next steps.",
	Triggers:       "Fluffy claims without data, unclear pricing, and not respecting their time.",
	ChallengeStyle: "Quantify your value with concrete ROI figures and customer proof, then ask for a clear next step.",
	Difficulty:     3,
	CannedResponses: []string{
		"What's the bottom-line impact for us?",
		"Give me a number. What does this save or make us?",
		"Who else in our space is using this right now?",
		"How quickly would we see results?",
		"What would the next step look like if I said yes?",
	},
}

var skepticalPersona = domain.PersonaProfile{
	Key:     KeySkeptical,
	Title:   "Skeptical Prospect",
	Mindset: "Has been burned by vendors before and assumes every claim is exaggerated until proven otherwise.",
	Concerns: []string{
		"That sounds too good to be true",
		"How can you prove these results are real",
		"What happens when it doesn't work as promised",
	},
	Behavior:       "Challenges every claim, asks for evidence, and goes quiet when answers feel rehearsed.",
	Triggers:       "Superlatives, hedging, and any claim without proof behind it.",
	ChallengeStyle: "Back every claim with evidence such as references, case studies, and guarantees, and acknowledge limitations openly.",
	Difficulty:     4,
	CannedResponses: []string{
		"I've heard that pitch before. What makes you different?",
		"That sounds too good to be true.",
		"Prove it. Who can I call to verify that?",
		"Every vendor says that. Show me the data.",
		"And what happens when it doesn't work?",
	},
}

var executivePersona = domain.PersonaProfile{
	Key:     KeyExecutive,
	Title:   "Time-Crunched Executive",
	Mindset: "Has five minutes between meetings and only cares about the headline and whether it is worth a follow-up.",
	Concerns: []string{
		"I don't have time for the long version",
		"What is the one thing I need to know",
		"Why is this a priority right now",
	},
	Behavior:       "Interrupts, checks the clock, and rewards crisp summaries with more attention.",
	Triggers:       "Rambling, filler words, and burying the point.",
	ChallengeStyle: "Lead with the headline outcome in one sentence and keep every answer under thirty seconds.",
	Difficulty:     4,
	CannedResponses: []string{
		"I've got two minutes. What's the point?",
		"Skip the background. What do you want from me?",
		"Bottom line it for me.",
		"Why should this be on my radar this quarter?",
		"Send me a one-pager and we'll see.",
	},
}

var budgetPersona = domain.PersonaProfile{
	Key:     KeyBudget,
	Title:   "Budget-Conscious Buyer",
	Mindset: "Every dollar is scrutinized and the default answer to new spend is no.",
	Concerns: []string{
		"This is probably more than we can afford",
		"What are the hidden costs",
		"Why is this better value than the cheaper option",
	},
	Behavior:       "Steers every conversation toward price, discounts, and total cost of ownership.",
	Triggers:       "Vague pricing, upsells, and value claims without numbers.",
	ChallengeStyle: "Frame the price against the cost of the problem and show concrete savings or payback period.",
	Difficulty:     3,
	CannedResponses: []string{
		"How much is this going to cost me?",
		"We really don't have budget for this right now.",
		"What are the hidden fees?",
		"Your competitor is cheaper. Why pay more?",
		"Is there a smaller plan to start with?",
	},
}

var technicalPersona = domain.PersonaProfile{
	Key:     KeyTechnical,
	Title:   "Technical Expert",
	Mindset: "Understands the problem space deeply and judges the product on architecture, integration, and specifics.",
	Concerns: []string{
		"How does this integrate with our existing stack",
		"What are the performance and security details",
		"What happens at scale or when something fails",
	},
	Behavior:       "Asks precise technical questions and loses trust at the first hand-wavy answer.",
	Triggers:       "Buzzwords, marketing speak, and not knowing the details.",
	ChallengeStyle: "Answer with precise technical specifics and numbers, and admit what you don't know instead of bluffing.",
	Difficulty:     4,
	CannedResponses: []string{
		"How exactly does that work under the hood?",
		"What does the integration with our systems look like?",
		"What are your uptime and latency numbers?",
		"How do you handle security and compliance?",
		"That's marketing speak. Give me the technical details.",
	},
}

var emotionalPersona = domain.PersonaProfile{
	Key:     KeyEmotional,
	Title:   "Emotional Buyer",
	Mindset: "Decides on feel and trust, wants to know how this will make life better for them and their team.",
	Concerns: []string{
		"I need to feel like you understand my situation",
		"Will this actually make things easier for my people",
		"I don't want to regret this decision",
	},
	Behavior:       "Opens up when listened to, shares stories, and withdraws from cold, transactional pitches.",
	Triggers:       "Feeling rushed, ignored, or treated like a number.",
	ChallengeStyle: "Connect with their story first, ask about how the problem feels, and paint the picture of life after the change.",
	Difficulty:     2,
	CannedResponses: []string{
		"I just want to know you actually get what we're going through.",
		"How will this make my team's day better?",
		"I'm worried we'll regret this.",
		"That feels a bit cold. Can you tell me about real people using it?",
		"What would it feel like six months from now?",
	},
}

var warmPersona = domain.PersonaProfile{
	Key:     KeyWarm,
	Title:   "Warm Lead",
	Mindset: "Already interested and came to you, wants confirmation that this is the right choice.",
	Concerns: []string{
		"How fast can we get started",
		"What does onboarding look like",
		"Is there anything that might make this not a fit",
	},
	Behavior:       "Friendly and engaged, but will cool off if you over-explain or fail to guide toward a decision.",
	Triggers:       "Losing momentum, re-pitching what they already know, and unclear next steps.",
	ChallengeStyle: "Don't oversell; confirm their needs, handle the last small doubts, and ask for the commitment.",
	Difficulty:     1,
	CannedResponses: []string{
		"I'm interested. What are the next steps?",
		"How quickly could we get started?",
		"What does onboarding actually involve?",
		"Is there anything I should be worried about?",
		"This sounds good. What do you need from me?",
	},
}

var competitorPersona = domain.PersonaProfile{
	Key:     KeyCompetitor,
	Title:   "Competitor (Fishing for Info)",
	Mindset: "Pretends to be a buyer but is really trying to extract pricing, roadmap, and customer details.",
	Concerns: []string{
		"Who exactly are your biggest customers",
		"What is your exact pricing structure",
		"What is on your product roadmap",
	},
	Behavior:       "Asks oddly specific questions about internals and dodges questions about their own needs.",
	Triggers:       "Being asked qualifying questions about their business.",
	ChallengeStyle: "Qualify before you disclose, ask about their needs, and protect confidential pricing and customer details.",
	Difficulty:     5,
	CannedResponses: []string{
		"Who are some of your biggest clients?",
		"What's your exact pricing for enterprise accounts?",
		"What's coming on your roadmap next year?",
		"How many customers do you have right now?",
		"Which vendors do you usually win against?",
	},
}

// catalog is read-only after init.
var (
	catalog = map[string]domain.PersonaProfile{}
	order   []string
)

func init() {
	for _, p := range []domain.PersonaProfile{
		newPersona,
		decisionPersona,
		skepticalPersona,
		executivePersona,
		budgetPersona,
		technicalPersona,
		emotionalPersona,
		warmPersona,
		competitorPersona,
	} {
		catalog[p.Key] = p
		order = append(order, p.Key)
	}
}

// Get returns the persona for key, or the "new" persona when key is unknown.
func Get(key string) domain.PersonaProfile {
	if p, ok := catalog[strings.ToLower(strings.TrimSpace(key))]; ok {
		return p.Clone()
	}
	return catalog[DefaultKey].Clone()
}

// Exists reports whether key names a catalog entry.
func Exists(key string) bool {
	_, ok := catalog[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// Keys lists persona keys in catalog order.
func Keys() []string {
	return append([]string(nil), order...)
}

func All() []domain.PersonaProfile {
	out := make([]domain.PersonaProfile, 0, len(order))
	for _, k := range order {
		out = append(out, catalog[k].Clone())
	}
	return out
}
