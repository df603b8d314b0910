package publisher_test

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/factor"
	"github.com/xraph/factor/auth"
	"github.com/xraph/factor/event"
	"github.com/xraph/factor/publisher"
	"github.com/xraph/factor/store/memory"
	"github.com/xraph/factor/types"
)

func receive(t *testing.T, ch <-chan *message.Message) *message.Message {
	t.Helper()
	select {
	case msg := <-ch:
		msg.Ack()
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestPublisherForwardsEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := publisher.NewMemory(slog.Default())
	pub := publisher.New(bus, publisher.WithTopicPrefix("test.invoice"))

	inits, err := bus.Subscribe(ctx, "test.invoice.init")
	require.NoError(t, err)
	mints, err := bus.Subscribe(ctx, "test.invoice.mint")
	require.NoError(t, err)

	eng := factor.New(memory.New(),
		factor.WithAuthorizer(auth.AllowAll),
		factor.WithPlugin(pub),
	)
	require.NoError(t, eng.Start(ctx))
	require.NoError(t, eng.Initialize(ctx, "GADMIN"))

	amount := types.MustParseDisplay("2500")
	due := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	invoiceID, err := eng.Mint(ctx, "GSELLER", "GDEBTOR", amount, due)
	require.NoError(t, err)

	initMsg := receive(t, inits)
	assert.Equal(t, "init", initMsg.Metadata.Get(publisher.MetadataEventName))
	assert.Equal(t, "GADMIN", initMsg.Metadata.Get(publisher.MetadataCaller))
	assert.Empty(t, initMsg.Metadata.Get(publisher.MetadataInvoiceID))

	mintMsg := receive(t, mints)
	assert.Equal(t, strconv.FormatUint(invoiceID, 10), mintMsg.Metadata.Get(publisher.MetadataInvoiceID))

	evt, err := publisher.Decode(mintMsg)
	require.NoError(t, err)
	assert.Equal(t, event.NameMint, evt.Name)
	assert.Equal(t, mintMsg.UUID, evt.ID.String())
	assert.Equal(t, types.Address("GSELLER"), evt.Caller)
	require.NotNil(t, evt.Amount)
	assert.True(t, evt.Amount.Equal(amount))
	require.NotNil(t, evt.DueDate)
	assert.True(t, evt.DueDate.Equal(due))
}

type failingPublisher struct{ closed bool }

func (f *failingPublisher) Publish(string, ...*message.Message) error {
	return errors.New("broker down")
}

func (f *failingPublisher) Close() error {
	f.closed = true
	return nil
}

func TestPublishFailureKeepsOperation(t *testing.T) {
	ctx := context.Background()
	broken := &failingPublisher{}

	eng := factor.New(memory.New(),
		factor.WithAuthorizer(auth.AllowAll),
		factor.WithPlugin(publisher.New(broken)),
	)
	require.NoError(t, eng.Start(ctx))
	require.NoError(t, eng.Initialize(ctx, "GADMIN"))

	count, err := eng.GetInvoiceCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	require.NoError(t, eng.Stop(ctx))
	assert.True(t, broken.closed)
}

func TestPublisherTopic(t *testing.T) {
	pub := publisher.New(publisher.NewMemory(slog.Default()))
	assert.Equal(t, "factor.invoice.settle", pub.Topic(event.NameSettle))
	assert.Equal(t, "factor.invoice.due", pub.Topic(event.NameDue))
}

func TestNewKafkaNeedsBrokers(t *testing.T) {
	_, err := publisher.NewKafka(nil, slog.Default())
	require.Error(t, err)
}
