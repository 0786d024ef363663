package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type accountRecord struct {
	bun.BaseModel `bun:"table:social_accounts,alias:sa"`

	ID          string    `bun:"id,pk"`
	Email       string    `bun:"email,nullzero"`
	DisplayName string    `bun:"display_name,notnull"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type identityLinkRecord struct {
	bun.BaseModel `bun:"table:social_identity_links,alias:sil"`

	ID           string    `bun:"id,pk"`
	AccountID    string    `bun:"account_id,notnull"`
	ProviderSlug string    `bun:"provider_slug,notnull"`
	ExternalID   string    `bun:"external_id,notnull"`
	CreatedAt    time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type outboxRecord struct {
	bun.BaseModel `bun:"table:social_auth_outbox,alias:sao"`

	ID            string         `bun:"id,pk"`
	EventID       string         `bun:"event_id,notnull"`
	EventName     string         `bun:"event_name,notnull"`
	AccountID     string         `bun:"account_id,notnull"`
	ProviderSlug  string         `bun:"provider_slug,notnull"`
	ExternalID    string         `bun:"external_id,notnull"`
	Payload       map[string]any `bun:"payload,type:jsonb,notnull"`
	Status        string         `bun:"status,notnull"`
	Attempts      int            `bun:"attempts,notnull"`
	NextAttemptAt *time.Time     `bun:"next_attempt_at,nullzero"`
	LastError     string         `bun:"last_error,notnull"`
	OccurredAt    time.Time      `bun:"occurred_at,nullzero,notnull"`
	CreatedAt     time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
