package core

import (
	"context"
	"fmt"
	"strings"
)

// AuthenticationGate establishes the session principal and announces it.
type AuthenticationGate struct {
	notifier Notifier
}

func NewAuthenticationGate(notifier Notifier) *AuthenticationGate {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &AuthenticationGate{notifier: notifier}
}

// Login replaces the session principal with accountID and emits
// EventAccountAuthenticated. Calling it again for the same account is harmless.
// The returned error covers the session only; notifier failures are reported
// in Delivery.Err.
func (g *AuthenticationGate) Login(ctx context.Context, session Session, accountID AccountID, providerSlug string) (Delivery, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return Delivery{}, badInput("core: login requires an account id")
	}
	if session == nil {
		return Delivery{}, badInput("core: login requires a session")
	}
	if err := session.SetCurrentAccount(ctx, accountID); err != nil {
		return Delivery{}, internalError("core: set session principal failed", err)
	}
	event := newEvent(EventAccountAuthenticated, accountID, NormalizeSlug(providerSlug), "", nil)
	delivery := deliver(ctx, g.notifier, event)
	if delivery.Err != nil {
		delivery.Err = fmt.Errorf("core: authenticated notification: %w", delivery.Err)
	}
	return delivery, nil
}
