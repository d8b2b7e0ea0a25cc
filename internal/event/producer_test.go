package event

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/internal/domain"
	pkgkafka "github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/pkg/kafka"
	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/pkg/logger"
)

type recordingWriter struct {
	topics []string
	events []*pkgkafka.Event
	err    error
}

func (w *recordingWriter) Publish(_ context.Context, topic string, evt *pkgkafka.Event) error {
	if w.err != nil {
		return w.err
	}
	w.topics = append(w.topics, topic)
	w.events = append(w.events, evt)
	return nil
}

func newTestProducer(w pkgkafka.Publisher) *Producer {
	return &Producer{kafka: w, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func testUser() *domain.User {
	div := "Kandy"
	return &domain.User{ID: "u-1", FullName: "Kamala Silva", Email: "kamala@safelanka.lk", Role: domain.RoleAnalyst, Approved: true, Division: &div}
}

func TestProducer_UserRegistered(t *testing.T) {
	w := &recordingWriter{}
	p := newTestProducer(w)

	ctx := logger.WithCorrelationID(context.Background(), "corr-1")
	require.NoError(t, p.UserRegistered(ctx, testUser()))

	require.Len(t, w.events, 1)
	assert.Equal(t, []string{TopicUserRegistered}, w.topics)

	evt := w.events[0]
	assert.Equal(t, TopicUserRegistered, evt.EventType)
	assert.Equal(t, "u-1", evt.AggregateID)
	assert.Equal(t, AggregateTypeUser, evt.AggregateType)
	assert.Equal(t, SourceAPI, evt.Source)
	assert.Equal(t, "corr-1", evt.CorrelationID)

	var data UserRegisteredData
	require.NoError(t, json.Unmarshal(evt.Data, &data))
	assert.Equal(t, "ANALYST", data.Role)
	require.NotNil(t, data.Division)
	assert.Equal(t, "Kandy", *data.Division)
}

func TestProducer_RoleChanged(t *testing.T) {
	w := &recordingWriter{}
	p := newTestProducer(w)

	require.NoError(t, p.RoleChanged(context.Background(), testUser(), domain.RoleOfficer, "admin-1"))

	var data UserRoleChangedData
	require.NoError(t, json.Unmarshal(w.events[0].Data, &data))
	assert.Equal(t, "ANALYST", data.Role)
	assert.Equal(t, "OFFICER", data.Previous)
	assert.Equal(t, "admin-1", data.ActorID)
	assert.Empty(t, w.events[0].CorrelationID)
	assert.Empty(t, w.events[0].Metadata)
}

func TestProducer_CallerIDInMetadata(t *testing.T) {
	w := &recordingWriter{}
	p := newTestProducer(w)

	ctx := logger.WithUserID(context.Background(), "admin-7")
	require.NoError(t, p.ApprovalChanged(ctx, testUser(), "admin-7"))

	assert.Equal(t, "admin-7", w.events[0].Metadata["caller_id"])
}

func TestProducer_ApprovalAndPasswordTopics(t *testing.T) {
	w := &recordingWriter{}
	p := newTestProducer(w)

	require.NoError(t, p.ApprovalChanged(context.Background(), testUser(), "admin-1"))
	require.NoError(t, p.PasswordChanged(context.Background(), testUser()))

	assert.Equal(t, []string{TopicUserApprovalChanged, TopicUserPasswordChanged}, w.topics)
}

func TestProducer_PublishError(t *testing.T) {
	p := newTestProducer(&recordingWriter{err: errors.New("broker down")})

	err := p.PasswordChanged(context.Background(), testUser())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish user.password_changed event")
}

func TestNop(t *testing.T) {
	var pub Publisher = Nop{}
	assert.NoError(t, pub.UserRegistered(context.Background(), testUser()))
	assert.NoError(t, pub.RoleChanged(context.Background(), testUser(), domain.RoleAdmin, "x"))
}
