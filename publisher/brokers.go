package publisher

import (
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/cockroachdb/errors"
)

// NewMemory returns an in-process pub/sub. Subscribers only receive
// messages published after they subscribe.
func NewMemory(logger *slog.Logger) *gochannel.GoChannel {
	return gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            100,
			BlockPublishUntilSubscriberAck: false,
		},
		watermill.NewSlogLogger(logger),
	)
}

// NewKafka returns a Kafka publisher for brokers.
func NewKafka(brokers []string, logger *slog.Logger) (message.Publisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("publisher: kafka needs at least one broker")
	}

	pub, err := kafka.NewPublisher(
		kafka.PublisherConfig{
			Brokers:   brokers,
			Marshaler: kafka.DefaultMarshaler{},
		},
		watermill.NewSlogLogger(logger),
	)
	if err != nil {
		return nil, errors.Wrap(err, "publisher: kafka")
	}
	return pub, nil
}
