package service

import "github.com/noah-isme/event-registration-api/internal/models"

// ConflictResult describes the outcome of an overlap check.
type ConflictResult struct {
	Conflict bool
	// First is the first overlapping interval in the order supplied.
	First *models.Interval
	// Degraded is set when the candidate or any existing interval lacked
	// usable bounds and was treated as non-conflicting.
	Degraded bool
	// Skipped lists owners of existing intervals that could not be compared.
	Skipped []string
}

// ConflictDetector checks half-open intervals [start, end) for overlap.
type ConflictDetector struct{}

// NewConflictDetector constructs a ConflictDetector.
func NewConflictDetector() *ConflictDetector {
	return &ConflictDetector{}
}

// HasConflict reports whether candidate overlaps any of existing. Two intervals
// conflict iff candidate.start < other.end and candidate.end > other.start, so
// back-to-back intervals do not conflict. Incomplete intervals fail open.
func (d *ConflictDetector) HasConflict(candidate models.Interval, existing []models.Interval) ConflictResult {
	result := ConflictResult{}
	if !candidate.Complete() {
		result.Degraded = true
		return result
	}
	for i := range existing {
		other := existing[i]
		if other.OwnerID != "" && other.OwnerID == candidate.OwnerID {
			continue
		}
		if !other.Complete() {
			result.Degraded = true
			result.Skipped = append(result.Skipped, other.OwnerID)
			continue
		}
		if candidate.Start.Before(*other.End) && candidate.End.After(*other.Start) {
			result.Conflict = true
			result.First = &other
			return result
		}
	}
	return result
}
