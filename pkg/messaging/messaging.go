// Package messaging delivers templated email/SMS through an external
// provider. Callers pass a recipient, a template name and template data; the
// provider renders and sends.
package messaging

import "context"

type Message struct {
	Recipient string
	Template  string
	Data      map[string]interface{}
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}
