package notification

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"realtime-service/internal/errs"
	"realtime-service/internal/logging"
	"realtime-service/internal/models"
	"realtime-service/internal/registry"
)

// Broadcaster is the fan-out side of the facade, implemented by the
// connection registry.
type Broadcaster interface {
	Broadcast(channel string, frame models.OutboundFrame) (registry.Result, error)
	SendToUser(userID string, frame models.OutboundFrame) (registry.Result, error)
}

// Outbox is the durable side of the facade.
type Outbox interface {
	Enqueue(ctx context.Context, m models.OutboxMessage) error
	MarkDelivered(ctx context.Context, messageID string) error
	MarkFailed(ctx context.Context, messageID string) error
}

// Service composes the outbox and the registry: every send is persisted
// before any transport attempt, then resolved to delivered or failed from
// the broadcast outcome.
type Service struct {
	broadcaster  Broadcaster
	outbox       Outbox
	adminChannel string
	logger       *logging.Logger
}

func New(broadcaster Broadcaster, ob Outbox, adminChannel string, logger *logging.Logger) *Service {
	return &Service{
		broadcaster:  broadcaster,
		outbox:       ob,
		adminChannel: adminChannel,
		logger:       logger,
	}
}

// SendToUser persists the message and fans it out to the user's personal
// channel. Returns the assigned message id.
func (s *Service) SendToUser(ctx context.Context, userID, msgType string, data interface{}, priority int) (string, error) {
	return s.send(ctx, registry.UserChannel(userID), userID, msgType, data, priority)
}

// SendToAdmins persists the message and fans it out to the admin channel.
func (s *Service) SendToAdmins(ctx context.Context, msgType string, data interface{}, priority int) (string, error) {
	return s.send(ctx, s.adminChannel, "", msgType, data, priority)
}

// Broadcast persists the message and fans it out to an arbitrary channel.
func (s *Service) Broadcast(ctx context.Context, channel, msgType string, data interface{}, priority int) (string, error) {
	if channel == "" {
		return "", errs.ErrValidation.WithDetails("channel is required")
	}
	return s.send(ctx, channel, "", msgType, data, priority)
}

func (s *Service) send(ctx context.Context, channel, userID, msgType string, data interface{}, priority int) (string, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return "", errs.ErrValidation.WithDetails("message payload is not serializable")
	}

	messageID := uuid.New().String()
	msg := models.OutboxMessage{
		MessageID: messageID,
		Channel:   channel,
		UserID:    userID,
		Type:      msgType,
		Payload:   payload,
		Priority:  priority,
	}
	if err := s.outbox.Enqueue(ctx, msg); err != nil {
		s.logger.Errorf("Enqueue failed for message %s: %v", messageID, err)
		return "", errs.Internal(err)
	}

	frame := models.NewOutbound(msgType)
	frame.Data = data
	frame.UserID = userID
	frame.Channel = channel

	res, err := s.broadcaster.Broadcast(channel, frame)
	if err != nil {
		s.logger.Errorf("Broadcast failed for message %s: %v", messageID, err)
		s.resolve(ctx, messageID, false)
		return messageID, errs.Internal(err)
	}

	// A channel with no subscribers is still a successful delivery:
	// persistence succeeded and nobody existed to fail against. Failed
	// means every attempted recipient rejected the send.
	delivered := res.Attempted == 0 || res.Delivered > 0
	s.resolve(ctx, messageID, delivered)
	return messageID, nil
}

func (s *Service) resolve(ctx context.Context, messageID string, delivered bool) {
	var err error
	if delivered {
		err = s.outbox.MarkDelivered(ctx, messageID)
	} else {
		err = s.outbox.MarkFailed(ctx, messageID)
	}
	if err != nil {
		s.logger.Errorf("Status update failed for message %s: %v", messageID, err)
	}
}

// SendSystemAlert always persists the alert; it reaches the admin channel
// only for high/critical severities, plus any user ids listed in the
// alert metadata.
func (s *Service) SendSystemAlert(ctx context.Context, alert models.Alert) error {
	if alert.Broadcastable() {
		if _, err := s.SendToAdmins(ctx, "system_alert", alert, models.PriorityCritical); err != nil {
			return err
		}
	} else {
		// Persist without fan-out so the audit trail is complete.
		payload, err := json.Marshal(alert)
		if err != nil {
			return errs.ErrValidation.WithDetails("alert is not serializable")
		}
		msg := models.OutboxMessage{
			MessageID: uuid.New().String(),
			Channel:   s.adminChannel,
			Type:      "system_alert",
			Payload:   payload,
			Priority:  models.PriorityMedium,
		}
		if err := s.outbox.Enqueue(ctx, msg); err != nil {
			return errs.Internal(err)
		}
		if err := s.outbox.MarkDelivered(ctx, msg.MessageID); err != nil {
			s.logger.Errorf("Status update failed for message %s: %v", msg.MessageID, err)
		}
	}

	for _, userID := range alertRecipients(alert) {
		if _, err := s.SendToUser(ctx, userID, "system_alert", alert, models.PriorityCritical); err != nil {
			s.logger.Errorf("Alert delivery to user %s failed: %v", userID, err)
		}
	}
	return nil
}

func alertRecipients(alert models.Alert) []string {
	raw, ok := alert.Metadata["user_ids"]
	if !ok || raw == "" {
		return nil
	}
	var users []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			users = append(users, id)
		}
	}
	return users
}
