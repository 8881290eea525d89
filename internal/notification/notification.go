package notification

import (
	"context"
	"errors"

	"github.com/frahmantamala/expense-approval/internal/core/events"
	"github.com/frahmantamala/expense-approval/internal/user"
)

var (
	ErrQueueFull  = errors.New("notification queue full")
	ErrPoolClosed = errors.New("notification pool closed")
)

// Message is one rendered notification addressed to one user.
type Message struct {
	EventID     string `json:"event_id"`
	EventType   string `json:"event_type"`
	ExpenseID   int64  `json:"expense_id,omitempty"`
	SiteID      int64  `json:"site_id,omitempty"`
	RecipientID int64  `json:"recipient_id"`
	Recipient   string `json:"recipient"`
	Subject     string `json:"subject"`
	Body        string `json:"body"`
}

// Channel delivers a message. Send must be safe for concurrent use.
type Channel interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Directory resolves notification recipients.
type Directory interface {
	GetByIDs(ctx context.Context, ids []int64) ([]*user.User, error)
	ListWithCapability(ctx context.Context, siteID int64, c user.Capability) ([]*user.User, error)
}

type Subscriber interface {
	Subscribe(eventType string, handler events.Handler)
}
