// Package messaging hands customer-facing messages to the channel service
// through the outbound messages topic.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/echo-commerce-backend/internal/orders"
	"github.com/angelmondragon/echo-commerce-backend/pkg/db/models"
)

const publishTimeout = 10 * time.Second

// Message kinds understood by the channel service.
const (
	KindPaymentConfirmation = "payment_confirmation"
)

var errConversationRequired = errors.New("conversation id is required")

// CustomerMessage is the wire shape of one outbound message.
type CustomerMessage struct {
	MessageID      uuid.UUID `json:"message_id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	BusinessID     uuid.UUID `json:"business_id"`
	OrderID        uuid.UUID `json:"order_id,omitempty"`
	Kind           string    `json:"kind"`
	Text           string    `json:"text"`
}

// Publisher is the topic handle the sender writes to.
type Publisher interface {
	Publish(ctx context.Context, msg *gcppubsub.Message) error
}

// Sender publishes customer messages.
type Sender struct {
	publisher Publisher
}

func NewSender(publisher Publisher) (*Sender, error) {
	if publisher == nil {
		return nil, errors.New("messages publisher required")
	}
	return &Sender{publisher: publisher}, nil
}

// SendCustomerMessage publishes msg and waits for the broker to accept it.
func (s *Sender) SendCustomerMessage(ctx context.Context, msg CustomerMessage) error {
	if msg.ConversationID == uuid.Nil {
		return errConversationRequired
	}
	if strings.TrimSpace(msg.Text) == "" {
		return errors.New("message text is required")
	}
	if msg.MessageID == uuid.Nil {
		msg.MessageID = uuid.New()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode customer message: %w", err)
	}
	return s.publisher.Publish(ctx, &gcppubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"kind":            msg.Kind,
			"conversation_id": msg.ConversationID.String(),
			"business_id":     msg.BusinessID.String(),
		},
	})
}

// SendPaymentConfirmation tells the customer their payment landed. Orders
// without a conversation have nobody to tell.
func (s *Sender) SendPaymentConfirmation(ctx context.Context, order *models.Order) error {
	if order.ConversationID == nil {
		return errConversationRequired
	}
	return s.SendCustomerMessage(ctx, CustomerMessage{
		ConversationID: *order.ConversationID,
		BusinessID:     order.BusinessID,
		OrderID:        order.ID,
		Kind:           KindPaymentConfirmation,
		Text:           PaymentConfirmationText(order),
	})
}

// PaymentConfirmationText renders the confirmation sent after a payment.
func PaymentConfirmationText(order *models.Order) string {
	return fmt.Sprintf("Payment received for order %s. Total: %s. Thank you!",
		order.OrderNumber, orders.FormatMoney(order.TotalCents, order.Currency))
}

// IsNoConversation reports whether err means the order has no conversation.
func IsNoConversation(err error) bool {
	return errors.Is(err, errConversationRequired)
}

// TopicPublisher adapts a Pub/Sub publisher and blocks until the publish
// result resolves.
type TopicPublisher struct {
	topic *gcppubsub.Publisher
}

func NewTopicPublisher(topic *gcppubsub.Publisher) *TopicPublisher {
	if topic == nil {
		return nil
	}
	return &TopicPublisher{topic: topic}
}

func (p *TopicPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if _, err := p.topic.Publish(ctx, msg).Get(ctx); err != nil {
		return fmt.Errorf("publish customer message: %w", err)
	}
	return nil
}
