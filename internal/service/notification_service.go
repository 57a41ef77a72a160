package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/fieldservice/internal/config"
	"github.com/spec-kit/fieldservice/internal/events"
)

// NotificationService turns domain events into outbound notifications.
// Delivery itself is an external concern; the stubs here log what would be
// sent. Handler errors surface through the dispatcher and are downgraded to
// warnings by the publishing service.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventEntryScheduled, n.handleEntryScheduled)
	n.dispatcher.Subscribe(events.EventStatusChanged, n.handleStatusChanged)
	n.dispatcher.Subscribe(events.EventBudgetDecided, n.handleBudgetDecided)
	n.dispatcher.Subscribe(events.EventReturnRequested, n.handleReturnRequested)
}

func (n *NotificationService) handleEntryScheduled(ctx context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.EntryScheduledPayload)
	n.logger.Info("EntryScheduled",
		zap.String("ticket_id", event.TicketID),
		zap.String("entry_id", payload.EntryID),
		zap.Int("recipients", len(payload.Recipients)))
	n.sendEmailStub(event)
	return nil
}

func (n *NotificationService) handleStatusChanged(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketStatusChanged", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	n.sendWebhookStub(event)
	return nil
}

func (n *NotificationService) handleBudgetDecided(ctx context.Context, event events.Event) error {
	n.logger.Info("BudgetDecided", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	n.sendWebhookStub(event)
	return nil
}

func (n *NotificationService) handleReturnRequested(ctx context.Context, event events.Event) error {
	n.logger.Info("ReturnRequested", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	n.sendWebhookStub(event)
	return nil
}

func (n *NotificationService) sendEmailStub(event events.Event) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return
	}
	n.logger.Debug("sendEmailStub",
		zap.String("from", n.cfg.EmailFrom),
		zap.String("ticket_id", event.TicketID),
		zap.String("event_type", string(event.Type)))
}

func (n *NotificationService) sendWebhookStub(event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("ticket_id", event.TicketID),
		zap.String("event_type", string(event.Type)))
}
