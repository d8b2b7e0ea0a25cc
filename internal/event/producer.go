package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/internal/domain"
	pkgkafka "github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/pkg/kafka"
	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/pkg/logger"
)

// Kafka topics for account lifecycle events.
const (
	TopicUserRegistered      = "user.registered"
	TopicUserApprovalChanged = "user.approval_changed"
	TopicUserRoleChanged     = "user.role_changed"
	TopicUserPasswordChanged = "user.password_changed"
)

const (
	AggregateTypeUser = "user"
	SourceAPI         = "safelanka-api"
)

type UserRegisteredData struct {
	ID       string  `json:"id"`
	FullName string  `json:"fullName"`
	Email    string  `json:"email"`
	Role     string  `json:"role"`
	Division *string `json:"division,omitempty"`
}

type UserApprovalChangedData struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Approved bool   `json:"approved"`
	ActorID  string `json:"actorId"`
}

type UserRoleChangedData struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	Previous string `json:"previousRole"`
	ActorID  string `json:"actorId"`
}

type UserPasswordChangedData struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Publisher emits account lifecycle events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	UserRegistered(ctx context.Context, user *domain.User) error
	ApprovalChanged(ctx context.Context, user *domain.User, actorID string) error
	RoleChanged(ctx context.Context, user *domain.User, previous domain.Role, actorID string) error
	PasswordChanged(ctx context.Context, user *domain.User) error
}

// Producer publishes account events to Kafka.
type Producer struct {
	kafka  pkgkafka.Publisher
	logger *slog.Logger
}

// NewProducer creates a Publisher writing through kafka, usually a
// pkgkafka.BreakerPublisher around a pkgkafka.Producer.
func NewProducer(kafka pkgkafka.Publisher, logger *slog.Logger) *Producer {
	return &Producer{kafka: kafka, logger: logger}
}

func (p *Producer) publish(ctx context.Context, topic, userID string, data any) error {
	evt, err := pkgkafka.NewEvent(topic, userID, AggregateTypeUser, SourceAPI, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		evt.WithCorrelationID(id)
	}
	if caller := logger.UserIDFromContext(ctx); caller != "" {
		evt.WithMetadata("caller_id", caller)
	}

	if err := p.kafka.Publish(ctx, topic, evt); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("user_id", userID),
	)
	return nil
}

func (p *Producer) UserRegistered(ctx context.Context, u *domain.User) error {
	return p.publish(ctx, TopicUserRegistered, u.ID, UserRegisteredData{
		ID:       u.ID,
		FullName: u.FullName,
		Email:    u.Email,
		Role:     u.Role.String(),
		Division: u.Division,
	})
}

func (p *Producer) ApprovalChanged(ctx context.Context, u *domain.User, actorID string) error {
	return p.publish(ctx, TopicUserApprovalChanged, u.ID, UserApprovalChangedData{
		ID:       u.ID,
		Email:    u.Email,
		Approved: u.Approved,
		ActorID:  actorID,
	})
}

func (p *Producer) RoleChanged(ctx context.Context, u *domain.User, previous domain.Role, actorID string) error {
	return p.publish(ctx, TopicUserRoleChanged, u.ID, UserRoleChangedData{
		ID:       u.ID,
		Email:    u.Email,
		Role:     u.Role.String(),
		Previous: previous.String(),
		ActorID:  actorID,
	})
}

func (p *Producer) PasswordChanged(ctx context.Context, u *domain.User) error {
	return p.publish(ctx, TopicUserPasswordChanged, u.ID, UserPasswordChangedData{ID: u.ID, Email: u.Email})
}

// Nop discards every event. It is wired when Kafka is disabled.
type Nop struct{}

func (Nop) UserRegistered(context.Context, *domain.User) error { return nil }
func (Nop) ApprovalChanged(context.Context, *domain.User, string) error { return nil }
func (Nop) RoleChanged(context.Context, *domain.User, domain.Role, string) error { return nil }
func (Nop) PasswordChanged(context.Context, *domain.User) error { return nil }
