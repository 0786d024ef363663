package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-social-auth/core"
)

var (
	_ gocmd.Querier[FindLinkedAccountMessage, LinkedAccount]      = (*FindLinkedAccountQuery)(nil)
	_ gocmd.Querier[IsAttachedMessage, bool]                      = (*IsAttachedQuery)(nil)
	_ gocmd.Querier[ListAccountLinksMessage, []core.IdentityLink] = (*ListAccountLinksQuery)(nil)

	_ LinkReader = (*core.Service)(nil)
)
