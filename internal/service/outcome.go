package service

import "github.com/scanixapp/scanix-server/internal/domain"

// Outcome reports what a scan mutation did. Mutations never fail the caller:
// decode failures, missing targets, and persistence errors are described
// here instead of being returned as errors.
type Outcome struct {
	// Scan is a copy of the scan after the mutation, pages in order.
	// Nil when the scan does not exist (not found, never created, or removed).
	Scan *domain.Scan

	Changed  bool // pages or name were modified
	Created  bool // a new scan was created
	Removed  bool // the scan was deleted, explicitly or because it became empty
	NotFound bool // the target scan or page does not exist; nothing happened

	// Dropped counts input images that could not be decoded and were skipped.
	Dropped int

	// PersistErr is the repository error, if saving or deleting failed.
	// In-memory state is kept; the next successful write catches disk up.
	PersistErr error
}

// OK reports whether the mutation found its target and persisted cleanly.
func (o Outcome) OK() bool {
	return !o.NotFound && o.PersistErr == nil
}
