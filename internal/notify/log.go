package notify

import (
	"context"
	"log"
)

// LogGateway writes reminders to the process log. Default mode for local
// development, where no delivery credentials exist.
type LogGateway struct{}

// Send logs the reminder and always succeeds.
func (LogGateway) Send(_ context.Context, recipient int64, text string) error {
	log.Printf("reminder for %d: %s", recipient, text)
	return nil
}
