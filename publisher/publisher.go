// Package publisher forwards committed marketplace events to a message bus.
//
// Publisher is a plugin.OnEvent: the engine hands it every event after the
// operation that produced it has committed, and a failed publish is logged
// by the plugin registry without affecting the operation.
package publisher

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/cockroachdb/errors"

	"github.com/xraph/factor/event"
	"github.com/xraph/factor/plugin"
)

// Ensure Publisher implements required interfaces.
var (
	_ plugin.Plugin     = (*Publisher)(nil)
	_ plugin.OnEvent    = (*Publisher)(nil)
	_ plugin.OnShutdown = (*Publisher)(nil)
)

// Message metadata keys.
const (
	MetadataEventName = "event_name"
	MetadataInvoiceID = "invoice_id"
	MetadataCaller    = "caller"
)

// DefaultTopicPrefix prefixes every topic unless WithTopicPrefix says otherwise.
const DefaultTopicPrefix = "factor.invoice"

// Publisher encodes events as JSON and publishes them on
// "<prefix>.<event name>" topics.
type Publisher struct {
	pub    message.Publisher
	prefix string
	logger *slog.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithTopicPrefix sets the topic prefix.
func WithTopicPrefix(prefix string) Option {
	return func(p *Publisher) { p.prefix = prefix }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

// New creates a Publisher writing to pub.
func New(pub message.Publisher, opts ...Option) *Publisher {
	p := &Publisher{
		pub:    pub,
		prefix: DefaultTopicPrefix,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements plugin.Plugin.
func (p *Publisher) Name() string { return "event-publisher" }

// Topic returns the topic evt is published on.
func (p *Publisher) Topic(name event.Name) string {
	return (&event.Event{Name: name}).Topic(p.prefix)
}

// OnEvent implements plugin.OnEvent.
func (p *Publisher) OnEvent(ctx context.Context, evt *event.Event) error {
	msg, err := NewMessage(evt)
	if err != nil {
		return err
	}
	msg.SetContext(ctx)

	topic := evt.Topic(p.prefix)
	if err := p.pub.Publish(topic, msg); err != nil {
		p.logger.Error("failed to publish event",
			"error", err,
			"event_id", evt.ID.String(),
			"event_name", evt.Name,
			"topic", topic,
		)
		return errors.Wrapf(err, "publisher: publish %s", topic)
	}

	p.logger.Debug("published event",
		"event_id", evt.ID.String(),
		"event_name", evt.Name,
		"invoice_id", evt.InvoiceID,
		"topic", topic,
	)
	return nil
}

// OnShutdown implements plugin.OnShutdown.
func (p *Publisher) OnShutdown(_ context.Context) error {
	return p.pub.Close()
}

// NewMessage encodes evt as a watermill message. The message UUID is the
// event id so that consumers can deduplicate redeliveries.
func NewMessage(evt *event.Event) (*message.Message, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, errors.Wrap(err, "publisher: encode event")
	}

	msg := message.NewMessage(evt.ID.String(), payload)
	msg.Metadata.Set(MetadataEventName, string(evt.Name))
	msg.Metadata.Set(MetadataCaller, evt.Caller.String())
	if evt.InvoiceID != 0 {
		msg.Metadata.Set(MetadataInvoiceID, strconv.FormatUint(evt.InvoiceID, 10))
	}
	return msg, nil
}

// Decode unmarshals a message produced by NewMessage.
func Decode(msg *message.Message) (*event.Event, error) {
	var evt event.Event
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		return nil, errors.Wrapf(err, "publisher: decode message %s", msg.UUID)
	}
	return &evt, nil
}
