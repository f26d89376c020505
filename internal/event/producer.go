package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Taro112233/mederror/internal/domain"
	pkgkafka "github.com/Taro112233/mederror/pkg/kafka"
)

// Kafka topic constants for account domain events.
const (
	TopicAccountRegistered      = "mederror.account.registered"
	TopicAccountApproved        = "mederror.account.approved"
	TopicAccountUpdated         = "mederror.account.updated"
	TopicAccountPasswordChanged = "mederror.account.password_changed"
)

// Aggregate type constant.
const AggregateTypeAccount = "account"

// Source identifier for events originating from this service.
const SourceAPI = "mederror-api"

// AccountRegisteredData is the payload for an account.registered event.
type AccountRegisteredData struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// AccountApprovedData is the payload for an account.approved event.
type AccountApprovedData struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// AccountUpdatedData is the payload for an account.updated event.
type AccountUpdatedData struct {
	ID        string  `json:"id"`
	Username  string  `json:"username"`
	Role      string  `json:"role"`
	Onboarded bool    `json:"onboarded"`
	OrgID     *string `json:"orgId,omitempty"`
}

// AccountPasswordChangedData is the payload for an account.password_changed event.
type AccountPasswordChangedData struct {
	ID string `json:"id"`
}

// Producer publishes account domain events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishAccountRegistered publishes an account.registered event.
func (p *Producer) PublishAccountRegistered(ctx context.Context, account *domain.Account) error {
	data := AccountRegisteredData{
		ID:       account.ID,
		Username: account.Username,
		Role:     account.Role,
	}

	event, err := pkgkafka.NewEvent(TopicAccountRegistered, account.ID, AggregateTypeAccount, SourceAPI, data)
	if err != nil {
		return fmt.Errorf("create account.registered event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicAccountRegistered, event); err != nil {
		return fmt.Errorf("publish account.registered event: %w", err)
	}

	p.logger.DebugContext(ctx, "published account.registered event",
		slog.String("account_id", account.ID),
	)

	return nil
}

// PublishAccountApproved publishes an account.approved event.
func (p *Producer) PublishAccountApproved(ctx context.Context, account *domain.Account) error {
	data := AccountApprovedData{
		ID:   account.ID,
		Role: account.Role,
	}

	event, err := pkgkafka.NewEvent(TopicAccountApproved, account.ID, AggregateTypeAccount, SourceAPI, data)
	if err != nil {
		return fmt.Errorf("create account.approved event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicAccountApproved, event); err != nil {
		return fmt.Errorf("publish account.approved event: %w", err)
	}

	p.logger.DebugContext(ctx, "published account.approved event",
		slog.String("account_id", account.ID),
		slog.String("role", account.Role),
	)

	return nil
}

// PublishAccountUpdated publishes an account.updated event.
func (p *Producer) PublishAccountUpdated(ctx context.Context, account *domain.Account) error {
	data := AccountUpdatedData{
		ID:        account.ID,
		Username:  account.Username,
		Role:      account.Role,
		Onboarded: account.Onboarded,
		OrgID:     account.OrganizationID,
	}

	event, err := pkgkafka.NewEvent(TopicAccountUpdated, account.ID, AggregateTypeAccount, SourceAPI, data)
	if err != nil {
		return fmt.Errorf("create account.updated event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicAccountUpdated, event); err != nil {
		return fmt.Errorf("publish account.updated event: %w", err)
	}

	p.logger.DebugContext(ctx, "published account.updated event",
		slog.String("account_id", account.ID),
	)

	return nil
}

// PublishAccountPasswordChanged publishes an account.password_changed event.
func (p *Producer) PublishAccountPasswordChanged(ctx context.Context, accountID string) error {
	data := AccountPasswordChangedData{ID: accountID}

	event, err := pkgkafka.NewEvent(TopicAccountPasswordChanged, accountID, AggregateTypeAccount, SourceAPI, data)
	if err != nil {
		return fmt.Errorf("create account.password_changed event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicAccountPasswordChanged, event); err != nil {
		return fmt.Errorf("publish account.password_changed event: %w", err)
	}

	p.logger.DebugContext(ctx, "published account.password_changed event",
		slog.String("account_id", accountID),
	)

	return nil
}
