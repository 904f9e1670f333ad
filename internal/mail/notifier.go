package mail

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nhle/issuebot/internal/model"
)

// Delivery tells how a message left the bot.
type Delivery int

const (
	// DeliverySent means the transport accepted the message.
	DeliverySent Delivery = iota

	// DeliveryDryRun means the message was logged instead of delivered.
	DeliveryDryRun
)

func (d Delivery) String() string {
	switch d {
	case DeliverySent:
		return "sent"
	case DeliveryDryRun:
		return "dry-run"
	default:
		return fmt.Sprintf("Delivery(%d)", int(d))
	}
}

// Transport hands a rendered message to the outside world.
type Transport interface {
	Deliver(ctx context.Context, from string, to []string, raw []byte) error
}

// Notifier renders messages and delivers them through a Transport, or
// only logs them in dry-run mode.
type Notifier struct {
	transport Transport
	dryRun    bool
	logger    *slog.Logger
}

// NewNotifier creates a Notifier. transport may be nil when dryRun is set.
func NewNotifier(transport Transport, dryRun bool, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{transport: transport, dryRun: dryRun, logger: logger}
}

// Send delivers msg. Any failure wraps model.ErrDeliveryFailed.
func (n *Notifier) Send(ctx context.Context, msg Message) (Delivery, error) {
	raw, err := msg.Bytes()
	if err != nil {
		return 0, fmt.Errorf("%w: composing message: %v", model.ErrDeliveryFailed, err)
	}

	if n.dryRun {
		n.logger.Info("dry run: not sending message",
			"to", msg.To,
			"subject", msg.Subject,
			"message", string(raw),
		)
		return DeliveryDryRun, nil
	}

	if n.transport == nil {
		return 0, fmt.Errorf("%w: no transport configured", model.ErrDeliveryFailed)
	}

	from, err := msg.Sender()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", model.ErrDeliveryFailed, err)
	}
	to, err := msg.Recipients()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", model.ErrDeliveryFailed, err)
	}

	if err := n.transport.Deliver(ctx, from, to, raw); err != nil {
		return 0, fmt.Errorf("%w: %w", model.ErrDeliveryFailed, err)
	}

	n.logger.Debug("message sent", "to", to, "subject", msg.Subject)
	return DeliverySent, nil
}
