package curriculum

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// NormalizeAnswer is the canonical form answers are stored and compared in.
func NormalizeAnswer(s string) string {
	// a Caser keeps state, so one per call
	return cases.Lower(language.Und).String(s)
}

// AnswerMatches reports whether a student's raw answer matches the stored one.
func AnswerMatches(raw, stored string) bool {
	return NormalizeAnswer(raw) == stored
}
