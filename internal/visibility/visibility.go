// Package visibility derives the per-viewer activity feeds. Every function
// is a pure filter over the loaded activity set, recomputed on each read;
// order is the stable arrival order of the input, never re-sorted here.
package visibility

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sejin/moim-api/internal/models"
)

// CategoryAll disables category filtering on the square feed.
const CategoryAll = "all"

// Filters narrows the square feed.
type Filters struct {
	Search   string // case-insensitive title substring
	Category string // meal, group_buy, or all
}

func related(a *models.Activity, viewerID uuid.UUID) bool {
	return a.AuthorID == viewerID || a.HasParticipant(viewerID)
}

func matches(a *models.Activity, f Filters) bool {
	if f.Search != "" && !strings.Contains(strings.ToLower(a.Title), strings.ToLower(f.Search)) {
		return false
	}
	if f.Category != "" && f.Category != CategoryAll && a.Category != f.Category {
		return false
	}
	return true
}

// Square is the public discover feed: recruiting activities anyone may look
// at. Excludes expired, viewer-dismissed, and anything past recruitment
// (cancelled, done, deleted).
func Square(activities []models.Activity, viewerID uuid.UUID, f Filters, now time.Time) []models.Activity {
	out := make([]models.Activity, 0, len(activities))
	for i := range activities {
		a := &activities[i]
		if a.Status != models.StatusActive && a.Status != models.StatusLocked {
			continue
		}
		if a.IsExpired(now) || a.DismissedBy(viewerID) {
			continue
		}
		if !matches(a, f) {
			continue
		}
		out = append(out, *a)
	}
	return out
}

// Ongoing lists the viewer's own activities that have not reached a terminal
// completion: active, locked, and cancelled-but-unacknowledged.
func Ongoing(activities []models.Activity, viewerID uuid.UUID) []models.Activity {
	out := make([]models.Activity, 0, len(activities))
	for i := range activities {
		a := &activities[i]
		if !related(a, viewerID) || a.DismissedBy(viewerID) {
			continue
		}
		switch a.Status {
		case models.StatusActive, models.StatusLocked, models.StatusCancelled:
			out = append(out, *a)
		}
	}
	return out
}

// History lists the viewer's completed activities.
func History(activities []models.Activity, viewerID uuid.UUID) []models.Activity {
	out := make([]models.Activity, 0, len(activities))
	for i := range activities {
		a := &activities[i]
		if !related(a, viewerID) || a.DismissedBy(viewerID) {
			continue
		}
		if a.Status == models.StatusDone {
			out = append(out, *a)
		}
	}
	return out
}
