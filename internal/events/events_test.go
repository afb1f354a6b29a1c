package events

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/models"
)

var at = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestNew_EncodesPayload(t *testing.T) {
	evt := New(models.EventOrderExpired, "0x01", "0x01", "", "EXPIRED", map[string]any{"refund_required": true}, at)
	require.NotEmpty(t, evt.ID)
	assert.Equal(t, models.EventOrderExpired, evt.Type)
	assert.True(t, evt.CreatedAt.Equal(at))

	var payload map[string]any
	require.NoError(t, json.Unmarshal(evt.Payload, &payload))
	assert.Equal(t, true, payload["refund_required"])

	other := New(models.EventOrderExpired, "0x01", "0x01", "", "EXPIRED", nil, at)
	assert.NotEqual(t, evt.ID, other.ID)
	assert.Empty(t, other.Payload)
}

func TestHub_FanOutAndDrop(t *testing.T) {
	h := NewHub(1)
	a, cancelA := h.Subscribe()
	b, cancelB := h.Subscribe()
	defer cancelB()
	require.Equal(t, 2, h.Subscribers())

	evt := New(models.EventProposalIssued, "p1", "0x01", "0xp", "PENDING", nil, at)
	require.NoError(t, h.Publish(context.Background(), evt))
	require.NoError(t, h.Publish(context.Background(), evt))

	assert.Equal(t, evt.ID, (<-a).ID)
	assert.Equal(t, evt.ID, (<-b).ID)
	assert.Equal(t, uint64(2), h.Dropped())

	cancelA()
	cancelA()
	_, open := <-a
	assert.False(t, open)
	assert.Equal(t, 1, h.Subscribers())
}

func TestHub_CloseEndsSubscriptions(t *testing.T) {
	h := NewHub(4)
	a, cancelA := h.Subscribe()
	h.Close()

	_, open := <-a
	assert.False(t, open)
	cancelA()
	assert.Zero(t, h.Subscribers())

	late, cancelLate := h.Subscribe()
	defer cancelLate()
	_, open = <-late
	assert.False(t, open, "subscribing after close yields a closed channel")
	require.NoError(t, h.Publish(context.Background(), New(models.EventOrderExpired, "0x01", "0x01", "", "EXPIRED", nil, at)))
}

func TestWebhookPublisher(t *testing.T) {
	var got models.DomainEvent
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, models.EventOrderSettled, r.Header.Get("X-Paynode-Event"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ok.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer bad.Close()

	evt := New(models.EventOrderSettled, "0x01", "0x01", "0xp", "FULFILLED", nil, at)

	require.NoError(t, NewWebhookPublisher([]string{ok.URL, " "}, time.Second).Publish(context.Background(), evt))
	assert.Equal(t, evt.ID, got.ID)

	err := NewWebhookPublisher([]string{ok.URL, bad.URL}, time.Second).Publish(context.Background(), evt)
	var herr *httpError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, http.StatusBadGateway, herr.StatusCode)
}

func TestMulti_JoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	var calls int
	m := Multi{
		PublisherFunc(func(context.Context, models.DomainEvent) error { calls++; return boom }),
		nil,
		PublisherFunc(func(context.Context, models.DomainEvent) error { calls++; return nil }),
	}
	err := m.Publish(context.Background(), models.DomainEvent{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}

func TestRedisPublisher_ChannelAndUnreachable(t *testing.T) {
	p := &RedisPublisher{
		Client: redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1}),
		Prefix: "paynode.events",
	}
	defer func() { _ = p.Close() }()
	assert.Equal(t, "paynode.events.OrderSettled", p.Channel(models.EventOrderSettled))
	assert.Error(t, p.Publish(context.Background(), models.DomainEvent{Type: models.EventOrderSettled}))

	var nilPub *RedisPublisher
	assert.NoError(t, nilPub.Publish(context.Background(), models.DomainEvent{}))
}
