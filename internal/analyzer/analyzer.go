// Package analyzer scores a single free-text sales message with additive keyword
// heuristics. It has no state and never fails.
package analyzer

import (
	"regexp"
	"strings"

	"github.com/kapu/pitch-coach-go/internal/domain"
	"github.com/kapu/pitch-coach-go/internal/util"
)

// DegeneratePenalty is applied when the whole message is "yes", "no" or under
// five characters.
const DegeneratePenalty = -10

const (
	MinScore = 0
	MaxScore = 10
)

type dimension int

const (
	dimQuality dimension = iota
	dimSpecificity
	dimValue
	dimCredibility
	dimEngagement
)

// message is the pre-processed input shared by every rule.
type message struct {
	raw    string
	lower  string
	length int
}

type rule struct {
	dim     dimension
	points  int
	insight string
	match   func(m message) bool
}

func phrases(needles ...string) func(message) bool {
	return func(m message) bool {
		return util.ContainsAny(m.lower, needles...)
	}
}

func pattern(expr string) func(message) bool {
	re := regexp.MustCompile(expr)
	return func(m message) bool {
		return re.MatchString(m.lower)
	}
}

var rules = []rule{
	// length
	{dimQuality, 2, "Gave a reasonably detailed response", func(m message) bool { return m.length > 50 }},
	{dimQuality, 1, "Developed the point at length", func(m message) bool { return m.length > 100 }},

	// reasoning markers
	{dimQuality, 3, "Explained the reasoning behind the claim", phrases("because", "specifically")},
	{dimQuality, 2, "Illustrated the point with an example", phrases("for example", "such as")},
	{dimQuality, 2, "Took time to clarify the message", phrases("let me explain", "what i mean is")},

	// numeric and financial specificity
	{dimSpecificity, 3, "Quantified value in money or percentages", phrases("$", "percent", "%")},
	{dimSpecificity, 2, "Used concrete numbers", pattern(`[0-9]`)},
	{dimSpecificity, 2, "Described a measurable change", phrases("increase", "decrease", "improve")},
	{dimSpecificity, 3, "Talked about return on investment", phrases("roi", "return on investment")},
	{dimSpecificity, 2, "Referenced real customers or cases", phrases("case study", "example", "client")},

	// value proposition
	{dimValue, 3, "Highlighted cost savings", phrases("save money", "saves money", "cost saving", "cost-saving", "reduce cost", "reduce your cost", "cut cost", "lower cost", "lower your cost", "save you", "saving you")},
	{dimValue, 3, "Connected the offer to revenue growth", phrases("revenue", "profit", "more sales", "grow sales", "increase sales", "growth")},
	{dimValue, 2, "Pointed to efficiency gains", phrases("efficien", "productiv", "streamline", "automat", "faster")},
	{dimValue, 3, "Differentiated from the competition", phrases("competitive", "advantage", "outperform", "ahead of", "unlike other", "unlike our", "competitors")},
	{dimValue, 2, "Framed a problem and its solution", func(m message) bool {
		return strings.Contains(m.lower, "problem") && strings.Contains(m.lower, "solution")
	}},

	// credibility
	{dimCredibility, 2, "Offered proof or a track record", phrases("proven", "proof", "track record", "results show", "data shows", "measured results")},
	{dimCredibility, 2, "Mentioned testimonials or references", phrases("testimonial", "reference", "customers say", "reviews", "recommended by")},
	{dimCredibility, 2, "Reduced risk with a guarantee", phrases("guarantee", "warranty", "money back", "money-back")},
	{dimCredibility, 2, "Cited certifications or awards", phrases("certified", "certification", "award", "accredited")},
	{dimCredibility, 1, "Signalled experience", phrases("experience", "established", "founded", "years in business")},

	// engagement
	{dimEngagement, 2, "Asked the prospect a question", phrases("?")},
	{dimEngagement, 1, "Spoke directly to the prospect", phrases("you")},
	{dimEngagement, 2, "Checked understanding with the prospect", phrases("does that make sense", "tell me more", "can you share", "what matters most", "how do you currently", "would it help", "is that a concern", "what's most important")},
	{dimEngagement, 2, "Used a hypothetical to involve the prospect", phrases("what if", "imagine")},

	// penalties
	{dimQuality, -2, "Relied on generic superlatives instead of specifics", phrases("good", "great", "amazing")},
	{dimQuality, -2, "Hedged instead of speaking with confidence", phrases("i think", "maybe", "probably")},
	{dimQuality, -3, "Response was too brief to carry a point", func(m message) bool { return m.length < 20 }},
	{dimQuality, -1, "Used filler words", pattern(`\b(um|uh|umm|basically|literally)\b|you know|kind of|sort of`)},
	{dimQuality, DegeneratePenalty, "Gave a one-word or empty answer", func(m message) bool {
		return m.lower == "no" || m.lower == "yes" || m.length < 5
	}},
	{dimQuality, -3, "Deflected the question back to the prospect", phrases("tell me what you", "what would you like")},
}

// Analyze scores message. The result's OverallScore is always within [0, 10].
func Analyze(text string) domain.InputAnalysis {
	trimmed := strings.TrimSpace(text)
	m := message{
		raw:    trimmed,
		lower:  strings.ToLower(trimmed),
		length: util.RuneLen(trimmed),
	}

	var a domain.InputAnalysis
	a.Insights = []string{}

	for _, r := range rules {
		if !r.match(m) {
			continue
		}
		switch r.dim {
		case dimQuality:
			a.Quality += r.points
		case dimSpecificity:
			a.Specificity += r.points
		case dimValue:
			a.ValueProposition += r.points
		case dimCredibility:
			a.Credibility += r.points
		case dimEngagement:
			a.Engagement += r.points
		}
		a.Insights = append(a.Insights, r.insight)
	}

	a.OverallScore = util.Clamp(a.Total(), MinScore, MaxScore)
	return a
}

// IsPoor reports whether the analysis falls in the poor-turn band.
func IsPoor(a domain.InputAnalysis, ceiling int) bool {
	return a.OverallScore <= ceiling
}
