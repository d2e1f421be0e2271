package enforce

import "github.com/harbinger-sec/warden/internal/approval"

// Outcome is the enforcement result for one tool call. Exactly one Outcome
// is produced per call.
type Outcome struct {
	// Allowed is whether the call may proceed right now. A confirm
	// outcome is not allowed until a resolution separately flips it.
	Allowed bool

	// Message is user-visible text attached to the outcome. Empty for
	// silent paths.
	Message string

	// Logged is whether an audit entry was written for this outcome.
	Logged bool

	// Pending is set only on the confirm path, while resolution has not
	// yet been observed.
	Pending *approval.Ticket
}
