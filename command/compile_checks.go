package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-social-auth/core"
)

var (
	_ gocmd.Commander[BeginAuthorizationMessage] = (*BeginAuthorizationCommand)(nil)
	_ gocmd.Commander[HandleCallbackMessage]     = (*HandleCallbackCommand)(nil)
	_ gocmd.Commander[DetachAccountMessage]      = (*DetachAccountCommand)(nil)

	_ MutatingService = (*core.Service)(nil)
)
