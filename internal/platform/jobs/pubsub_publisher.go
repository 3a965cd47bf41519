package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	domain "github.com/clovermart/storefront/internal/domain"
)

// PubSubOrderPublisher publishes order lifecycle events to a Pub/Sub topic.
// Downstream consumers (notification, shipment creation) subscribe to the
// same topic and filter on the "type" attribute.
type PubSubOrderPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubOrderPublisher constructs a Pub/Sub backed order event publisher.
func NewPubSubOrderPublisher(topic *pubsub.Topic) (*PubSubOrderPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub order publisher: topic is required")
	}
	return &PubSubOrderPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

type orderEventMessage struct {
	Type        string             `json:"type"`
	OrderID     string             `json:"orderId"`
	OrderNumber int64              `json:"orderNumber,omitempty"`
	Status      string             `json:"status"`
	PromoCode   string             `json:"promoCode,omitempty"`
	Lines       []orderEventLine   `json:"lines,omitempty"`
	Totals      orderEventTotals   `json:"totals"`
	ShippingTo  orderEventShipping `json:"shippingTo"`
	OccurredAt  time.Time          `json:"occurredAt"`
}

type orderEventLine struct {
	ProductID string `json:"productId"`
	SKU       string `json:"sku,omitempty"`
	Name      string `json:"name,omitempty"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
	LineTotal int64  `json:"lineTotal"`
}

type orderEventTotals struct {
	Subtotal int64  `json:"subtotal"`
	Discount int64  `json:"discount"`
	Total    int64  `json:"total"`
	Currency string `json:"currency"`
}

type orderEventShipping struct {
	Name       string `json:"name,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country,omitempty"`
}

// PublishOrderEvent enqueues the event on the configured topic and waits for
// the server-assigned message ID so publish failures surface to the caller.
func (p *PubSubOrderPublisher) PublishOrderEvent(ctx context.Context, event domain.OrderEvent) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub order publisher: not initialised")
	}

	message := orderEventMessage{
		Type:        event.Type,
		OrderID:     event.OrderID,
		OrderNumber: event.OrderNumber,
		Status:      string(event.Status),
		PromoCode:   event.PromoCode,
		Totals: orderEventTotals{
			Subtotal: event.Totals.Subtotal,
			Discount: event.Totals.Discount,
			Total:    event.Totals.Total,
			Currency: event.Totals.Currency,
		},
		ShippingTo: orderEventShipping{
			Name:       event.ShippingTo.Name,
			City:       event.ShippingTo.City,
			State:      event.ShippingTo.State,
			PostalCode: event.ShippingTo.PostalCode,
			Country:    event.ShippingTo.Country,
		},
		OccurredAt: event.OccurredAt.UTC(),
	}
	for _, line := range event.Lines {
		message.Lines = append(message.Lines, orderEventLine{
			ProductID: line.ProductID,
			SKU:       line.SKU,
			Name:      line.Name,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			LineTotal: line.LineTotal,
		})
	}

	data, err := p.marshal(message)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "type", event.Type)
	setAttr(attrs, "orderId", event.OrderID)
	setAttr(attrs, "status", string(event.Status))
	if event.OrderNumber > 0 {
		attrs["orderNumber"] = strconv.FormatInt(event.OrderNumber, 10)
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish order event: %w", err)
	}
	return nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
