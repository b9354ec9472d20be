// Package opportunity implements the CreateOpportunity page: who may see the
// form, how a draft is validated, and what happens once it is submitted.
package opportunity

import (
	"time"

	"connectkids/internal/model"
)

// RedirectDelay is how long the confirmation view stays up before the
// browser moves on to the listings page.
const RedirectDelay = 2000 * time.Millisecond

// View is the single view the page renders for a given state.
type View int

const (
	// ViewLoading is shown while the session is unresolved.
	ViewLoading View = iota
	// ViewLogin sends the visitor to the external login flow.
	ViewLogin
	// ViewCompleteProfile sends a user without a role to pick one.
	ViewCompleteProfile
	// ViewDenied is the fixed "Organizers Only" page.
	ViewDenied
	// ViewSubmitted confirms a created listing.
	ViewSubmitted
	// ViewEditing is the form.
	ViewEditing
)

func (v View) String() string {
	switch v {
	case ViewLoading:
		return "loading"
	case ViewLogin:
		return "login"
	case ViewCompleteProfile:
		return "complete-profile"
	case ViewDenied:
		return "denied"
	case ViewSubmitted:
		return "submitted"
	case ViewEditing:
		return "editing"
	default:
		return "unknown"
	}
}

// State is everything the view depends on.
type State struct {
	SessionResolved bool
	Authenticated   bool
	Role            model.Role
	Submitted       bool
}

// Derive picks the view for s. Role checks win over the submitted flag so a
// non-organizer never sees the confirmation.
func Derive(s State) View {
	switch {
	case !s.SessionResolved:
		return ViewLoading
	case !s.Authenticated:
		return ViewLogin
	case s.Role == "":
		return ViewCompleteProfile
	case s.Role != model.RoleOrganizer:
		return ViewDenied
	case s.Submitted:
		return ViewSubmitted
	default:
		return ViewEditing
	}
}
