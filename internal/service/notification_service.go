package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/requisition-service/internal/config"
	"github.com/spec-kit/requisition-service/internal/events"
)

// Publisher forwards serialized triggers to the notification subsystem.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// NotificationService turns lifecycle events into notification triggers.
// Delivery, retries and templates belong to the subsystem behind the publisher.
// Events reach it through the notification worker, which calls Deliver.
type NotificationService struct {
	publisher Publisher
	ledger    *AuditTrailLedger
	logger    *zap.Logger
	cfg       config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(publisher Publisher, ledger *AuditTrailLedger, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		publisher: publisher,
		ledger:    ledger,
		logger:    logger,
		cfg:       cfg,
	}
}

// Deliver routes event to its handler; unknown types are ignored.
func (n *NotificationService) Deliver(ctx context.Context, event events.Event) error {
	switch event.Type {
	case events.EventRequisitionSubmitted:
		return n.handleSubmitted(ctx, event)
	case events.EventRequisitionApproved:
		return n.handleApproved(ctx, event)
	case events.EventRequisitionRejected:
		return n.handleRejected(ctx, event)
	case events.EventRequisitionPaid:
		return n.handlePaid(ctx, event)
	}
	return nil
}

func (n *NotificationService) handleSubmitted(ctx context.Context, event events.Event) error {
	return n.send(ctx, event, "requisition submitted for review")
}

func (n *NotificationService) handleApproved(ctx context.Context, event events.Event) error {
	msg := "requisition approved"
	if p, ok := event.Payload.(events.ApprovedPayload); ok {
		msg = fmt.Sprintf("requisition approved by %s for %s", p.ApproverID, p.ApprovedCost.StringFixed(2))
	}
	return n.send(ctx, event, msg)
}

func (n *NotificationService) handleRejected(ctx context.Context, event events.Event) error {
	msg := "requisition rejected"
	if p, ok := event.Payload.(events.RejectedPayload); ok && p.Reason != "" {
		msg = "requisition rejected: " + p.Reason
	}
	return n.send(ctx, event, msg)
}

func (n *NotificationService) handlePaid(ctx context.Context, event events.Event) error {
	msg := "requisition paid"
	if p, ok := event.Payload.(events.PaidPayload); ok {
		msg = fmt.Sprintf("requisition paid: %s %s", p.Amount.StringFixed(2), p.Currency)
	}
	return n.send(ctx, event, msg)
}

func (n *NotificationService) send(ctx context.Context, event events.Event, message string) error {
	n.logger.Info("notification trigger",
		zap.String("requisition_id", event.RequisitionID),
		zap.String("event_type", string(event.Type)))
	if n.publisher == nil {
		return nil
	}

	body, err := json.Marshal(struct {
		events.Event
		Message string `json:"message"`
	}{Event: event, Message: message})
	if err != nil {
		return fmt.Errorf("encode %s notification: %w", event.Type, err)
	}
	if err := n.publisher.Publish(ctx, n.channel(event.Type), body); err != nil {
		return fmt.Errorf("publish %s notification: %w", event.Type, err)
	}

	if n.ledger != nil {
		if err := n.ledger.RecordNotification(ctx, event.RequisitionID, string(event.Type), message); err != nil {
			n.logger.Warn("notification audit failed",
				zap.String("requisition_id", event.RequisitionID),
				zap.Error(err))
		}
	}
	return nil
}

func (n *NotificationService) channel(eventType events.EventType) string {
	prefix := strings.TrimSuffix(strings.TrimSpace(n.cfg.ChannelPrefix), ".")
	if prefix == "" {
		return string(eventType)
	}
	return prefix + "." + string(eventType)
}
