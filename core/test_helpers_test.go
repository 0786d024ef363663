package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var testProviders = []ProviderConfig{
	{Slug: "github", Label: "GitHub"},
	{Slug: "google", Label: "Google"},
}

type stubOAuthClient struct {
	mu       sync.Mutex
	profile  ExternalProfile
	err      error
	block    chan struct{}
	redirect AuthorizationRedirect
	calls    int
	params   []CallbackParams
}

func (c *stubOAuthClient) BuildAuthorizationRedirect(_ context.Context, provider ProviderConfig) (AuthorizationRedirect, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return AuthorizationRedirect{}, c.err
	}
	redirect := c.redirect
	if redirect.URL == "" {
		redirect.URL = "https://idp.example/" + provider.Slug + "/authorize?state=s1"
		redirect.State = "s1"
	}
	return redirect, nil
}

func (c *stubOAuthClient) FetchProfile(_ context.Context, _ ProviderConfig, params CallbackParams) (ExternalProfile, error) {
	c.mu.Lock()
	c.calls++
	c.params = append(c.params, params)
	block := c.block
	profile, err := c.profile, c.err
	c.mu.Unlock()
	if block != nil {
		<-block
	}
	return profile, err
}

func (c *stubOAuthClient) setProfile(profile ExternalProfile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.profile = profile
	c.err = nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, event Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return n.err
}

func (n *recordingNotifier) names() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, event := range n.events {
		out = append(out, event.Name)
	}
	return out
}

type metricCall struct {
	name string
	tags map[string]string
}

type captureMetricsRecorder struct {
	mu         sync.Mutex
	counters   []metricCall
	histograms []metricCall
}

func (r *captureMetricsRecorder) IncCounter(_ context.Context, name string, _ int64, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters = append(r.counters, metricCall{name: name, tags: tags})
}

func (r *captureMetricsRecorder) ObserveHistogram(_ context.Context, name string, _ float64, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.histograms = append(r.histograms, metricCall{name: name, tags: tags})
}

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type logEntry struct {
	level   string
	message string
	args    []any
}

type captureLogger struct {
	mu      *sync.Mutex
	entries *[]logEntry
}

func newCaptureLogger() captureLogger {
	return captureLogger{mu: &sync.Mutex{}, entries: &[]logEntry{}}
}

func (l captureLogger) record(level string, message string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.entries = append(*l.entries, logEntry{level: level, message: message, args: args})
}

func (l captureLogger) Trace(msg string, args ...any) { l.record("trace", msg, args) }
func (l captureLogger) Debug(msg string, args ...any) { l.record("debug", msg, args) }
func (l captureLogger) Info(msg string, args ...any)  { l.record("info", msg, args) }
func (l captureLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args) }
func (l captureLogger) Error(msg string, args ...any) { l.record("error", msg, args) }
func (l captureLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args) }
func (l captureLogger) WithContext(context.Context) Logger {
	return l
}

func (l captureLogger) snapshot() []logEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]logEntry(nil), (*l.entries)...)
}

type mapRawLoader struct {
	values map[string]any
	err    error
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	if l.err != nil {
		return nil, l.err
	}
	out := make(map[string]any, len(l.values))
	for key, value := range l.values {
		out[key] = value
	}
	return out, nil
}

// faultyStores fails link inserts inside transactions with insertErr.
type faultyStores struct {
	*MemoryStore
	insertErr error
}

func (f faultyStores) RunInTx(ctx context.Context, fn func(ctx context.Context, stores TxStores) error) error {
	return f.MemoryStore.RunInTx(ctx, func(ctx context.Context, stores TxStores) error {
		return fn(ctx, faultyTx{TxStores: stores, insertErr: f.insertErr})
	})
}

type faultyTx struct {
	TxStores
	insertErr error
}

func (t faultyTx) Links() IdentityLinkStore {
	return faultyLinks{IdentityLinkStore: t.TxStores.Links(), err: t.insertErr}
}

type faultyLinks struct {
	IdentityLinkStore
	err error
}

func (l faultyLinks) Insert(ctx context.Context, link IdentityLink) (IdentityLink, error) {
	if l.err != nil {
		return IdentityLink{}, l.err
	}
	return l.IdentityLinkStore.Insert(ctx, link)
}

type failingSession struct {
	current AccountID
	err     error
}

func (s failingSession) CurrentAccount(context.Context) (AccountID, bool, error) {
	return s.current, s.current != "", nil
}

func (s failingSession) SetCurrentAccount(context.Context, AccountID) error {
	return s.err
}

var errStorageDown = errors.New("storage down")

type testHarness struct {
	service  *Service
	store    *MemoryStore
	client   *stubOAuthClient
	notifier *recordingNotifier
	metrics  *captureMetricsRecorder
}

func newTestHarness(t *testing.T, opts ...Option) testHarness {
	t.Helper()
	store := NewMemoryStore()
	client := &stubOAuthClient{}
	notifier := &recordingNotifier{}
	metrics := &captureMetricsRecorder{}
	base := []Option{
		WithStores(store),
		WithOAuthClient(client),
		WithNotifier(notifier),
		WithMetricsRecorder(metrics),
		WithLogger(stubLogger{}),
	}
	svc, err := NewService(Config{
		Providers:    testProviders,
		RedirectTo:   "/home",
		FetchTimeout: time.Second,
	}, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return testHarness{service: svc, store: store, client: client, notifier: notifier, metrics: metrics}
}

func (h testHarness) seedAccount(t *testing.T, account LocalAccount) {
	t.Helper()
	if err := h.store.Seed(account); err != nil {
		t.Fatalf("seed account %s: %v", account.ID, err)
	}
}

func (h testHarness) seedLink(t *testing.T, accountID AccountID, providerSlug string, externalID string) IdentityLink {
	t.Helper()
	link, err := h.service.Linker().Attach(context.Background(), accountID, providerSlug, externalID)
	if err != nil {
		t.Fatalf("seed link %s/%s: %v", providerSlug, externalID, err)
	}
	return link
}
