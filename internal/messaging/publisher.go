package messaging

import (
	"context"

	"github.com/datalith/provenance-ledger/internal/domain"
)

// Publisher defines the interface for publishing provenance notifications to
// the message broker. Publishing happens after the record is durably
// committed and is best-effort: a failed publish never rolls back the append.
type Publisher interface {
	// PublishNotification publishes a committed provenance record notification
	PublishNotification(ctx context.Context, notification *domain.Notification) error
	// Close closes the connection
	Close()
}
