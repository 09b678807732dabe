// Package lifecycle holds the activity state machine: which transitions
// exist, who may trigger them, and the guards that must hold. Every mutating
// handler goes through these checks; nothing here touches the database.
package lifecycle

import (
	"github.com/google/uuid"

	"github.com/sejin/moim-api/internal/models"
)

// Transition names, also used as metric labels and websocket event payloads.
const (
	TransitionLock     = "lock"
	TransitionReopen   = "reopen"
	TransitionComplete = "complete"
	TransitionCancel   = "cancel"
	TransitionDelete   = "delete"
	TransitionRestore  = "restore"
)

// Machine-readable denial reasons returned to clients.
const (
	ReasonValidation           = "validation"
	ReasonNotAuthor            = "not_author"
	ReasonInvalidTransition    = "invalid_transition"
	ReasonAlreadyJoined        = "already_joined"
	ReasonNotAMember           = "not_a_member"
	ReasonAuthorCannotQuit     = "author_cannot_quit"
	ReasonFull                 = "full"
	ReasonVerificationRequired = "verification_required"
	ReasonNotFound             = "not_found"
	ReasonTransient            = "transient"
)

// Denial is a precondition failure. Operations that return one perform no
// mutation at all.
type Denial struct {
	Reason  string
	Message string
}

func (d *Denial) Error() string { return d.Message }

var (
	ErrAlreadyJoined        = &Denial{ReasonAlreadyJoined, "You already joined this activity"}
	ErrFull                 = &Denial{ReasonFull, "This activity has reached its maximum number of people"}
	ErrVerificationRequired = &Denial{ReasonVerificationRequired, "This activity requires a verified account"}
	ErrRecruitmentClosed    = &Denial{ReasonInvalidTransition, "Recruitment is closed for this activity"}
	ErrNotAMember           = &Denial{ReasonNotAMember, "You are not a member of this activity"}
	ErrAuthorCannotQuit     = &Denial{ReasonAuthorCannotQuit, "The author cannot quit. Cancel or delete the activity instead."}
	ErrNotAuthor            = &Denial{ReasonNotAuthor, "Only the author can do this"}
	ErrBelowMinimum         = &Denial{ReasonInvalidTransition, "Not enough people joined yet"}
	ErrHasMembers           = &Denial{ReasonInvalidTransition, "Others already joined. Cancel the activity instead of deleting it."}
	ErrNothingToRestore     = &Denial{ReasonInvalidTransition, "Nothing to restore"}
	ErrNotCancelled         = &Denial{ReasonInvalidTransition, "This activity is not cancelled"}
)

func invalid(msg string) *Denial {
	return &Denial{ReasonInvalidTransition, msg}
}

// CanJoin checks membership-ledger guards in order: recruitment open,
// not already a member, not full, verification satisfied. The caller supplies
// the user's verified flag; verification itself is checked elsewhere.
func CanJoin(a *models.Activity, userID uuid.UUID, verified bool) error {
	if a.Status != models.StatusActive {
		return ErrRecruitmentClosed
	}
	if a.HasParticipant(userID) {
		return ErrAlreadyJoined
	}
	if a.IsFull() {
		return ErrFull
	}
	if a.RequiresVerification && !verified {
		return ErrVerificationRequired
	}
	return nil
}

// CanQuit checks quit guards. Quitting never changes the activity status.
func CanQuit(a *models.Activity, userID uuid.UUID) error {
	if !a.HasParticipant(userID) {
		return ErrNotAMember
	}
	if a.AuthorID == userID {
		return ErrAuthorCannotQuit
	}
	return nil
}

// CanAck checks the per-viewer cancellation acknowledgement. It records a
// dismissal for the viewer and never touches global status.
func CanAck(a *models.Activity, userID uuid.UUID) error {
	if a.Status != models.StatusCancelled {
		return ErrNotCancelled
	}
	if a.AuthorID == userID {
		return invalid("The author keeps the cancelled activity until it is hidden")
	}
	if !a.HasParticipant(userID) {
		return ErrNotAMember
	}
	return nil
}

// CanHide checks the per-viewer dismissal. Hiding is scoped to viewers
// related to the activity; strangers have nothing of theirs to hide.
func CanHide(a *models.Activity, userID uuid.UUID) error {
	if a.AuthorID != userID && !a.HasParticipant(userID) {
		return ErrNotAMember
	}
	return nil
}

// CanTransition is the single authorization point for status-changing
// operations. It returns nil when the actor may perform the transition.
func CanTransition(a *models.Activity, actorID uuid.UUID, transition string) error {
	switch transition {
	case TransitionLock:
		if a.AuthorID != actorID {
			return ErrNotAuthor
		}
		if a.Status != models.StatusActive {
			return invalid("Only an active activity can be locked")
		}
		if !a.CanFinish() {
			return ErrBelowMinimum
		}
		return nil
	case TransitionReopen:
		if a.AuthorID != actorID {
			return ErrNotAuthor
		}
		if a.Status != models.StatusLocked {
			return invalid("Only a locked activity can be reopened")
		}
		return nil
	case TransitionComplete:
		if a.AuthorID != actorID {
			return ErrNotAuthor
		}
		if a.Status != models.StatusLocked {
			return invalid("End recruitment before completing the activity")
		}
		return nil
	case TransitionCancel:
		if a.AuthorID != actorID {
			return ErrNotAuthor
		}
		if a.Status != models.StatusActive && a.Status != models.StatusLocked {
			return invalid("Only an active or locked activity can be cancelled")
		}
		return nil
	case TransitionDelete:
		if a.AuthorID != actorID {
			return ErrNotAuthor
		}
		if a.Status != models.StatusActive && a.Status != models.StatusCancelled && a.Status != models.StatusDone {
			return invalid("This activity cannot be deleted now")
		}
		if a.CurrentPeople() > 1 {
			return ErrHasMembers
		}
		return nil
	case TransitionRestore:
		// Un-deleting is the author's; clearing one's own dismissal is open
		// to any viewer who dismissed the activity.
		if a.Status == models.StatusDeleted {
			if a.AuthorID != actorID {
				return ErrNotAuthor
			}
			return nil
		}
		if a.DismissedBy(actorID) {
			return nil
		}
		return ErrNothingToRestore
	default:
		return invalid("Unknown transition")
	}
}
