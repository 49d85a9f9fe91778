package orchestrator

import (
	"github.com/kapu/pitch-coach-go/internal/constants"
	"github.com/kapu/pitch-coach-go/internal/domain"
	"github.com/kapu/pitch-coach-go/internal/util"
)

// concernPool is what a poor turn draws from: the persona's concerns phrased
// as challenges, then its canned lines.
func concernPool(p domain.PersonaProfile) []string {
	pool := make([]string, 0, len(p.Concerns)+len(p.CannedResponses))
	for _, c := range p.Concerns {
		if line := concernAsChallenge(c); line != "" {
			pool = append(pool, line)
		}
	}
	return append(pool, p.CannedResponses...)
}

// pick chooses from pool, preferring lines that are neither in the recent
// canned window nor repetitive against the recent prospect turns. Each
// preference is dropped in turn when nothing satisfies it.
func (o *Orchestrator) pick(pool []string, state domain.SessionState) string {
	recentProspect := state.RecentProspectTurns(constants.SessionConfig.RecentProspect)

	fresh := func(s string) bool { return !util.Contains(state.RecentCanned, s) }
	varied := func(s string) bool { return !isRepetitive(s, recentProspect) }

	filters := [][]func(string) bool{
		{fresh, varied},
		{varied},
		{fresh},
		nil,
	}
	for _, fs := range filters {
		candidates := filter(pool, fs...)
		if len(candidates) > 0 {
			return candidates[o.intN(len(candidates))]
		}
	}
	return ""
}

func filter(pool []string, keep ...func(string) bool) []string {
	out := make([]string, 0, len(pool))
outer:
	for _, s := range pool {
		for _, k := range keep {
			if !k(s) {
				continue outer
			}
		}
		out = append(out, s)
	}
	return out
}

// rememberCanned pushes line onto the recent window, keeping its size bounded.
func rememberCanned(recent []string, line string) []string {
	out := append(append([]string(nil), recent...), line)
	if n := constants.SessionConfig.RecentCanned; len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}
