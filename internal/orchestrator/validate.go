package orchestrator

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kapu/pitch-coach-go/internal/constants"
	"github.com/kapu/pitch-coach-go/internal/util"
)

// rejectReason labels why a model reply was replaced. It doubles as the
// fallback metric label.
type rejectReason string

const (
	reasonNone       rejectReason = ""
	reasonTooShort   rejectReason = "too_short"
	reasonBanned     rejectReason = "banned_phrase"
	reasonRepetitive rejectReason = "repetitive"
	reasonError      rejectReason = "completion_error"
	reasonDisabled   rejectReason = "completion_disabled"
)

// validateReply cleans a model reply and checks it against the recent
// prospect lines.
func validateReply(reply string, recent []string) (string, rejectReason) {
	cleaned := cleanReply(reply)

	if util.RuneLen(cleaned) < constants.ReplyValidation.MinLength {
		return cleaned, reasonTooShort
	}
	if strings.Contains(strings.ToLower(cleaned), strings.ToLower(constants.ReplyValidation.BannedPhrase)) {
		return cleaned, reasonBanned
	}
	if isRepetitive(cleaned, recent) {
		return cleaned, reasonRepetitive
	}
	return cleaned, reasonNone
}

// cleanReply strips whitespace and a speaker label or wrapping quotes that
// models sometimes add.
func cleanReply(reply string) string {
	s := strings.TrimSpace(reply)
	for _, label := range []string{"Prospect:", "prospect:", "Buyer:", "buyer:"} {
		s = strings.TrimSpace(strings.TrimPrefix(s, label))
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

// isRepetitive reports whether candidate shares more than MaxSharedWords
// significant words with any of the recent lines.
func isRepetitive(candidate string, recent []string) bool {
	words := util.SignificantWords(candidate, constants.ReplyValidation.MinWordLength)
	for _, prev := range recent {
		shared := util.SharedCount(words, util.SignificantWords(prev, constants.ReplyValidation.MinWordLength))
		if shared > constants.ReplyValidation.MaxSharedWords {
			return true
		}
	}
	return false
}

var questionStarters = []string{"why", "what", "how", "who", "when", "where", "is", "are", "do", "does", "can", "will", "would", "should"}

// concernAsChallenge turns a persona concern into a spoken line.
func concernAsChallenge(concern string) string {
	c := strings.TrimSpace(concern)
	if c == "" {
		return c
	}
	last, _ := utf8.DecodeLastRuneInString(c)
	if unicode.IsPunct(last) {
		return c
	}
	first := strings.ToLower(strings.Fields(c)[0])
	for _, q := range questionStarters {
		if first == q {
			return c + "?"
		}
	}
	return c + "."
}
