package domain

import "golang.org/x/text/cases"

// FoldName case-folds s for caseless comparison ("Straße" matches "STRASSE").
// A Caser keeps internal state, so a fresh one is built per call.
func FoldName(s string) string {
	return cases.Fold().String(s)
}
