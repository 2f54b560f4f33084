// Package webhooks verifies inbound platform and internal webhook requests and holds
// the closed registry of webhook kinds this platform accepts.
package webhooks

// Kind is a closed set of inbound webhook payload shapes. Unknown kinds are rejected
// at the edge rather than forwarded with a generic shape.
type Kind string

const (
	KindMessageCreated    Kind = "message_created"
	KindMessageDeleted    Kind = "message_deleted"
	KindReactionAdded     Kind = "reaction_added"
	KindInteractionCreate Kind = "interaction_create"
)

// ValidKinds lists every Kind this platform dispatches, in registration order.
var ValidKinds = []Kind{
	KindMessageCreated,
	KindMessageDeleted,
	KindReactionAdded,
	KindInteractionCreate,
}

// Valid reports whether k is one of ValidKinds.
func (k Kind) Valid() bool {
	for _, v := range ValidKinds {
		if v == k {
			return true
		}
	}
	return false
}
