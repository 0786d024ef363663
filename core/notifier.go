package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Event) error { return nil }

// MultiNotifier delivers each event to every notifier in order and joins
// their failures.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, event Event) error {
	var errs []error
	for _, notifier := range m {
		if notifier == nil {
			continue
		}
		if err := notifier.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OutboxNotifier persists events for an external relay instead of delivering
// them in-process.
type OutboxNotifier struct {
	Store OutboxStore
}

func NewOutboxNotifier(store OutboxStore) *OutboxNotifier {
	return &OutboxNotifier{Store: store}
}

func (n *OutboxNotifier) Notify(ctx context.Context, event Event) error {
	if n == nil || n.Store == nil {
		return fmt.Errorf("core: outbox store is required")
	}
	if err := n.Store.Enqueue(ctx, event); err != nil {
		return fmt.Errorf("core: enqueue %s event: %w", event.Name, err)
	}
	return nil
}

// Delivery is the result of handing one event to the notifier. Err never
// invalidates the mutation that produced Event.
type Delivery struct {
	Event Event
	Err   error
}

func newEvent(name string, accountID AccountID, providerSlug string, externalID string, payload map[string]any) Event {
	return Event{
		ID:           uuid.NewString(),
		Name:         name,
		AccountID:    accountID,
		ProviderSlug: providerSlug,
		ExternalID:   externalID,
		OccurredAt:   time.Now().UTC(),
		Payload:      copyAnyMap(payload),
	}
}

func deliver(ctx context.Context, notifier Notifier, event Event) Delivery {
	if notifier == nil {
		return Delivery{Event: event}
	}
	err := notifier.Notify(ctx, event)
	if err != nil && strings.TrimSpace(err.Error()) == "" {
		err = fmt.Errorf("core: notify %s failed", event.Name)
	}
	return Delivery{Event: event, Err: err}
}
