// Package notify delivers reminder texts to participants. The gateway is
// an external collaborator: a failure for one recipient is opaque to the
// core and never aborts a batch.
package notify

import "context"

// Gateway sends one text to one recipient, identified by telegram ID.
type Gateway interface {
	Send(ctx context.Context, recipient int64, text string) error
}
