package query

import "strings"

const (
	TypeFindLinkedAccount = "social_auth.query.linked_account.find"
	TypeIsAttached        = "social_auth.query.link.is_attached"
	TypeListAccountLinks  = "social_auth.query.links.list"
)

type FindLinkedAccountMessage struct {
	ProviderSlug string
	ExternalID   string
}

func (FindLinkedAccountMessage) Type() string { return TypeFindLinkedAccount }

func (m FindLinkedAccountMessage) Validate() error {
	if strings.TrimSpace(m.ProviderSlug) == "" {
		return queryValidationError("provider_slug", "provider slug is required")
	}
	if strings.TrimSpace(m.ExternalID) == "" {
		return queryValidationError("external_id", "external id is required")
	}
	return nil
}

type IsAttachedMessage struct {
	AccountID    string
	ProviderSlug string
}

func (IsAttachedMessage) Type() string { return TypeIsAttached }

func (m IsAttachedMessage) Validate() error {
	if strings.TrimSpace(m.AccountID) == "" {
		return queryValidationError("account_id", "account id is required")
	}
	if strings.TrimSpace(m.ProviderSlug) == "" {
		return queryValidationError("provider_slug", "provider slug is required")
	}
	return nil
}

type ListAccountLinksMessage struct {
	AccountID string
}

func (ListAccountLinksMessage) Type() string { return TypeListAccountLinks }

func (m ListAccountLinksMessage) Validate() error {
	if strings.TrimSpace(m.AccountID) == "" {
		return queryValidationError("account_id", "account id is required")
	}
	return nil
}
