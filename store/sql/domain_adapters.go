package sqlstore

import (
	"strings"
	"time"

	"github.com/goliatone/go-social-auth/core"
	"github.com/google/uuid"
)

func newAccountRecord(account core.LocalAccount, now time.Time) *accountRecord {
	id := strings.TrimSpace(account.ID)
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := account.CreatedAt.UTC()
	if account.CreatedAt.IsZero() {
		createdAt = now
	}
	return &accountRecord{
		ID:          id,
		Email:       strings.TrimSpace(account.Email),
		DisplayName: strings.TrimSpace(account.DisplayName),
		CreatedAt:   createdAt,
	}
}

func (r *accountRecord) toDomain() core.LocalAccount {
	if r == nil {
		return core.LocalAccount{}
	}
	return core.LocalAccount{
		ID:          r.ID,
		Email:       r.Email,
		DisplayName: r.DisplayName,
		CreatedAt:   r.CreatedAt,
	}
}

func newIdentityLinkRecord(link core.IdentityLink, now time.Time) *identityLinkRecord {
	id := strings.TrimSpace(link.ID)
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := link.CreatedAt.UTC()
	if link.CreatedAt.IsZero() {
		createdAt = now
	}
	return &identityLinkRecord{
		ID:           id,
		AccountID:    strings.TrimSpace(link.AccountID),
		ProviderSlug: core.NormalizeSlug(link.ProviderSlug),
		ExternalID:   strings.TrimSpace(link.ExternalID),
		CreatedAt:    createdAt,
	}
}

func (r *identityLinkRecord) toDomain() core.IdentityLink {
	if r == nil {
		return core.IdentityLink{}
	}
	return core.IdentityLink{
		ID:           r.ID,
		AccountID:    r.AccountID,
		ProviderSlug: r.ProviderSlug,
		ExternalID:   r.ExternalID,
		CreatedAt:    r.CreatedAt,
	}
}

func outboxRecordToEvent(record outboxRecord) core.Event {
	return core.Event{
		ID:           record.EventID,
		Name:         record.EventName,
		AccountID:    record.AccountID,
		ProviderSlug: record.ProviderSlug,
		ExternalID:   record.ExternalID,
		OccurredAt:   record.OccurredAt,
		Payload:      copyAnyMap(record.Payload),
	}
}

func copyAnyMap(src map[string]any) map[string]any {
	if len(src) == 0 {
		return map[string]any{}
	}
	dst := make(map[string]any, len(src))
	for key, value := range src {
		dst[key] = value
	}
	return dst
}
