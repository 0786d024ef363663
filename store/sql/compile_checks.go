package sqlstore

import "github.com/goliatone/go-social-auth/core"

var (
	_ core.Stores            = (*Store)(nil)
	_ core.IdentityLinkStore = (*LinkStore)(nil)
	_ core.IdentityLinkStore = (*CachedLinkStore)(nil)
	_ core.AccountStore      = (*AccountStore)(nil)
	_ core.OutboxStore       = (*OutboxStore)(nil)
)
