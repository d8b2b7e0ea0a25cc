package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func newTestProducer(w *fakeWriter) *Producer {
	return &Producer{writer: w, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func header(msg kafka.Message, key string) string {
	return NewHeaderCarrier(&msg.Headers).Get(key)
}

// --- Event ---

func TestNewEvent_Fields(t *testing.T) {
	data := map[string]string{"email": "alice@example.com"}
	event, err := NewEvent("user.registered", "u-1", "user", "safelanka-api", data)
	require.NoError(t, err)

	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, "user.registered", event.EventType)
	assert.Equal(t, "u-1", event.AggregateID)
	assert.Equal(t, 1, event.Version)
	assert.WithinDuration(t, time.Now().UTC(), event.Timestamp, 2*time.Second)
	assert.JSONEq(t, `{"email":"alice@example.com"}`, string(event.Data))
}

func TestNewEvent_UnserializableData(t *testing.T) {
	_, err := NewEvent("user.registered", "u-1", "user", "svc", make(chan int))
	require.Error(t, err)
}

func TestEvent_Chaining(t *testing.T) {
	event, err := NewEvent("user.role_changed", "u-1", "user", "svc", nil)
	require.NoError(t, err)

	same := event.WithCorrelationID("corr-1").WithMetadata("actor_id", "admin-1")
	assert.Same(t, event, same)
	assert.Equal(t, "corr-1", event.CorrelationID)
	assert.Equal(t, "admin-1", event.Metadata["actor_id"])
}

// --- Producer ---

func TestPublish_WritesKeyedMessage(t *testing.T) {
	w := &fakeWriter{}
	p := newTestProducer(w)

	event, err := NewEvent("user.approval_changed", "u-7", "user", "safelanka-api", map[string]bool{"approved": true})
	require.NoError(t, err)
	event.WithCorrelationID("corr-7")

	before := testutil.ToFloat64(ProducerMessagesPublished.WithLabelValues("user.approval_changed"))
	require.NoError(t, p.Publish(context.Background(), "user.approval_changed", event))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "user.approval_changed", msg.Topic)
	assert.Equal(t, "u-7", string(msg.Key))
	assert.Equal(t, "user.approval_changed", header(msg, "event_type"))
	assert.Equal(t, "corr-7", header(msg, "correlation_id"))

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, event.EventID, decoded.EventID)

	after := testutil.ToFloat64(ProducerMessagesPublished.WithLabelValues("user.approval_changed"))
	assert.Equal(t, before+1, after)
}

func TestPublish_WriterError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	p := newTestProducer(w)

	event, err := NewEvent("user.registered", "u-1", "user", "svc", nil)
	require.NoError(t, err)

	before := testutil.ToFloat64(ProducerPublishErrors.WithLabelValues("user.registered"))
	err = p.Publish(context.Background(), "user.registered", event)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish event to user.registered")
	assert.Equal(t, before+1, testutil.ToFloat64(ProducerPublishErrors.WithLabelValues("user.registered")))
}

func TestPublish_InjectsTraceContext(t *testing.T) {
	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
	prevProp := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		otel.SetTextMapPropagator(prevProp)
		_ = tp.Shutdown(context.Background())
	})

	ctx, span := tp.Tracer("test").Start(context.Background(), "register")
	defer span.End()

	w := &fakeWriter{}
	event, err := NewEvent("user.registered", "u-1", "user", "svc", nil)
	require.NoError(t, err)
	require.NoError(t, newTestProducer(w).Publish(ctx, "user.registered", event))

	tp2 := header(w.msgs[0], "traceparent")
	assert.Contains(t, tp2, span.SpanContext().TraceID().String())
}

func TestClose_ClosesWriter(t *testing.T) {
	w := &fakeWriter{}
	require.NoError(t, newTestProducer(w).Close())
	assert.True(t, w.closed)
}

func TestPingBrokers_NoBrokers(t *testing.T) {
	err := PingBrokers(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no brokers configured")
}

func TestDefaultProducerConfig(t *testing.T) {
	cfg := DefaultProducerConfig([]string{"kafka:9092"})
	assert.Equal(t, []string{"kafka:9092"}, cfg.Brokers)
	assert.Positive(t, cfg.WriteTimeout)
}

// --- HeaderCarrier ---

func TestHeaderCarrier(t *testing.T) {
	headers := []kafka.Header{{Key: "existing", Value: []byte("v1")}}
	c := NewHeaderCarrier(&headers)

	assert.Equal(t, "v1", c.Get("existing"))
	assert.Empty(t, c.Get("missing"))

	c.Set("existing", "v2")
	c.Set("new", "v3")

	assert.Equal(t, "v2", c.Get("existing"))
	assert.ElementsMatch(t, []string{"existing", "new"}, c.Keys())
	assert.Len(t, headers, 2)
}
