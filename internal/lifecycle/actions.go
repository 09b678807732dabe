package lifecycle

import (
	"time"

	"github.com/google/uuid"

	"github.com/sejin/moim-api/internal/models"
)

// Viewer-facing action names.
const (
	ActionJoin     = "join"
	ActionQuit     = "quit"
	ActionLock     = "lock"
	ActionReopen   = "reopen"
	ActionComplete = "complete"
	ActionCancel   = "cancel"
	ActionAck      = "ack"
	ActionDelete   = "delete"
	ActionRestore  = "restore"
	ActionHide     = "hide"
)

// ActionsFor derives the actions a viewer may take on an activity, computed
// fresh on every read. A ghosted activity exposes only restore, superseding
// everything else.
func ActionsFor(a *models.Activity, viewerID uuid.UUID, now time.Time) []string {
	if a.IsGhostFor(viewerID) {
		if CanTransition(a, viewerID, TransitionRestore) == nil {
			return []string{ActionRestore}
		}
		return nil
	}

	isAuthor := a.AuthorID == viewerID
	isMember := a.HasParticipant(viewerID)

	var actions []string
	switch a.Status {
	case models.StatusActive:
		if isAuthor {
			if a.CanFinish() {
				actions = append(actions, ActionLock)
			}
			actions = append(actions, ActionCancel)
			if a.CurrentPeople() <= 1 {
				actions = append(actions, ActionDelete)
			}
		} else if isMember {
			actions = append(actions, ActionQuit)
		} else if !a.IsFull() && !a.IsExpired(now) {
			actions = append(actions, ActionJoin)
		}
	case models.StatusLocked:
		if isAuthor {
			actions = append(actions, ActionReopen, ActionComplete, ActionCancel)
		} else if isMember {
			actions = append(actions, ActionQuit)
		}
	case models.StatusCancelled:
		if isAuthor {
			if a.CurrentPeople() <= 1 {
				actions = append(actions, ActionDelete)
			}
			actions = append(actions, ActionHide)
		} else if isMember {
			actions = append(actions, ActionAck)
		}
	case models.StatusDone:
		if isAuthor && a.CurrentPeople() <= 1 {
			actions = append(actions, ActionDelete)
		}
		if isAuthor || isMember {
			actions = append(actions, ActionHide)
		}
	}
	return actions
}
