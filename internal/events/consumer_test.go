package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const resolvedData = `{
	"id":"0d6c1c8e-0000-4000-8000-000000000001",
	"type":"PRODUCT_SNAPSHOT_RESOLVED",
	"aggregate_type":"product_snapshot",
	"aggregate_id":"a3f1",
	"timestamp":"2026-01-02T03:04:05Z",
	"payload":{"id":"a3f1","url":"https://shop.example/p/1","title":"Runner","imageUrl":null,"price":"89.99","currency":"GBP","resolvedAt":"2026-01-02T03:04:05Z"},
	"metadata":{"source":"product-resolver","retry_count":0}
}`

type mockStream struct {
	mock.Mock
}

func (m *mockStream) XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd {
	args := m.Called(ctx, stream, group, start)
	cmd := redis.NewStatusCmd(ctx)
	if err := args.Error(0); err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal("OK")
	}
	return cmd
}

func (m *mockStream) XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd {
	args := m.Called(ctx, a)
	cmd := redis.NewXStreamSliceCmd(ctx)
	if err := args.Error(1); err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal(args.Get(0).([]redis.XStream))
	}
	return cmd
}

func (m *mockStream) XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd {
	m.Called(ctx, stream, group, ids)
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(int64(len(ids)))
	return cmd
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDecode(t *testing.T) {
	event, err := Decode(redis.XMessage{ID: "1-0", Values: map[string]any{"data": resolvedData}})
	require.NoError(t, err)

	assert.Equal(t, "1-0", event.MessageID)
	assert.Equal(t, "PRODUCT_SNAPSHOT_RESOLVED", event.Type)
	assert.Equal(t, "a3f1", event.AggregateID)
	assert.Equal(t, "product-resolver", event.Metadata["source"])

	payload, err := event.SnapshotResolved()
	require.NoError(t, err)
	assert.Equal(t, "Runner", payload.Title)
	assert.Equal(t, "89.99", payload.Price)
	assert.Nil(t, payload.ImageURL)
}

func TestDecodeRejectsMalformed(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]any
	}{
		{"no data", map[string]any{"event_type": "X"}},
		{"not json", map[string]any{"data": "{"}},
		{"no type", map[string]any{"data": `{"id":"1"}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(redis.XMessage{ID: "1-0", Values: tt.values})
			assert.ErrorIs(t, err, ErrMalformedMessage)
		})
	}
}

func TestConsumerPoll(t *testing.T) {
	ctx := context.Background()
	client := new(mockStream)

	var handled []string
	handler := func(_ context.Context, e *Event) error {
		handled = append(handled, e.MessageID)
		if e.MessageID == "3-0" {
			return errors.New("downstream unavailable")
		}
		return nil
	}

	c := NewConsumer(client, handler, discardLogger(), Config{Stream: "stream:product_snapshots"})

	client.On("XReadGroup", ctx, mock.MatchedBy(func(a *redis.XReadGroupArgs) bool {
		return a.Group == DefaultGroup && a.Streams[0] == "stream:product_snapshots" && a.Streams[1] == ">"
	})).Return([]redis.XStream{{
		Stream: "stream:product_snapshots",
		Messages: []redis.XMessage{
			{ID: "1-0", Values: map[string]any{"data": resolvedData}},
			{ID: "2-0", Values: map[string]any{"garbage": "x"}},
			{ID: "3-0", Values: map[string]any{"data": resolvedData}},
		},
	}}, nil)
	client.On("XAck", ctx, "stream:product_snapshots", DefaultGroup, []string{"1-0"}).Return()
	client.On("XAck", ctx, "stream:product_snapshots", DefaultGroup, []string{"2-0"}).Return()

	require.NoError(t, c.poll(ctx))

	assert.Equal(t, []string{"1-0", "3-0"}, handled)
	client.AssertExpectations(t)
	client.AssertNotCalled(t, "XAck", ctx, "stream:product_snapshots", DefaultGroup, []string{"3-0"})
}

func TestConsumerPollIdle(t *testing.T) {
	ctx := context.Background()
	client := new(mockStream)
	c := NewConsumer(client, func(context.Context, *Event) error { return nil }, discardLogger(), Config{Stream: "s"})

	client.On("XReadGroup", ctx, mock.Anything).Return(nil, redis.Nil)

	assert.NoError(t, c.poll(ctx))
	client.AssertNotCalled(t, "XAck", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestConsumerRunGroupCreation(t *testing.T) {
	t.Run("existing group is fine", func(t *testing.T) {
		client := new(mockStream)
		c := NewConsumer(client, nil, discardLogger(), Config{Stream: "s"})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		client.On("XGroupCreateMkStream", ctx, "s", DefaultGroup, "0").
			Return(errors.New("BUSYGROUP Consumer Group name already exists"))

		assert.ErrorIs(t, c.Run(ctx), context.Canceled)
	})

	t.Run("other errors abort", func(t *testing.T) {
		client := new(mockStream)
		c := NewConsumer(client, nil, discardLogger(), Config{Stream: "s"})
		ctx := context.Background()

		client.On("XGroupCreateMkStream", ctx, "s", DefaultGroup, "0").Return(errors.New("NOAUTH"))

		err := c.Run(ctx)
		assert.ErrorContains(t, err, "failed to create consumer group")
	})
}
