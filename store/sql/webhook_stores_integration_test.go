package sqlstore_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"testing"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-webhooks/core"
	webhookmigrations "github.com/goliatone/go-webhooks/migrations"
	sqlstore "github.com/goliatone/go-webhooks/store/sql"
	_ "github.com/mattn/go-sqlite3"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-webhooks-tests"
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:webhooks-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	dialect, err := sqlstore.NewDialect(cfg.driver)
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("resolve dialect: %v", err)
	}
	client, err := persistence.New(cfg, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = webhookmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != webhookmigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, webhookmigrations.WithTargets(webhookmigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}

func newStoreFactory(t *testing.T) (*sqlstore.RepositoryFactory, func()) {
	t.Helper()
	client, cleanup := newSQLiteClient(t)
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		cleanup()
		t.Fatalf("new repository factory: %v", err)
	}
	return factory, cleanup
}

func seedEventAndSubscription(t *testing.T, factory *sqlstore.RepositoryFactory) (core.Event, core.Subscription) {
	t.Helper()
	ctx := context.Background()

	event, err := core.NewEvent("user.created", map[string]any{"user_id": "u_1"})
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	if err := factory.EventStore().Save(ctx, event); err != nil {
		t.Fatalf("save event: %v", err)
	}

	subscriptionStore, ok := factory.SubscriptionStore().(*sqlstore.SubscriptionStore)
	if !ok {
		t.Fatalf("expected *sqlstore.SubscriptionStore, got %T", factory.SubscriptionStore())
	}
	subscription, err := subscriptionStore.Save(ctx, core.Subscription{
		TargetURL:  "https://example.test/hook",
		Secret:     "shh",
		EventTypes: []string{"user.*"},
		Active:     true,
	})
	if err != nil {
		t.Fatalf("save subscription: %v", err)
	}
	return event, subscription
}

func TestMigrationsApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	for _, table := range []string{
		"webhook_events",
		"webhook_subscriptions",
		"webhook_delivery_attempts",
		"webhook_dead_letters",
	} {
		var name string
		if err := client.DB().NewRaw(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
			table,
		).Scan(context.Background(), &name); err != nil {
			t.Fatalf("query sqlite master for %s: %v", table, err)
		}
		if name != table {
			t.Fatalf("expected table %q, got %q", table, name)
		}
	}
}

func TestEventStore_SaveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newStoreFactory(t)
	defer cleanup()

	event, err := core.NewEvent("user.created", map[string]any{"user_id": "u_1"})
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	if err := factory.EventStore().Save(ctx, event); err != nil {
		t.Fatalf("save event: %v", err)
	}
	if err := factory.EventStore().Save(ctx, event); err != nil {
		t.Fatalf("re-saving the same event must be a no-op: %v", err)
	}

	stored, err := factory.EventStore().Get(ctx, event.ID)
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if stored.Type != "user.created" || stored.Payload["user_id"] != "u_1" {
		t.Fatalf("unexpected stored event: %+v", stored)
	}

	if _, err := factory.EventStore().Get(ctx, "evt_missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSubscriptionStore_SaveListDeactivate(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newStoreFactory(t)
	defer cleanup()

	store, ok := factory.SubscriptionStore().(*sqlstore.SubscriptionStore)
	if !ok {
		t.Fatalf("expected *sqlstore.SubscriptionStore, got %T", factory.SubscriptionStore())
	}

	subscription, err := store.Save(ctx, core.Subscription{
		TargetURL:  "https://example.test/hook",
		Secret:     "shh",
		EventTypes: []string{"user.*", "order.created"},
		Active:     true,
	})
	if err != nil {
		t.Fatalf("save subscription: %v", err)
	}
	if subscription.ID == "" {
		t.Fatalf("expected generated id")
	}

	active, err := store.ListActive(ctx, "user.created")
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 1 || active[0].ID != subscription.ID {
		t.Fatalf("unexpected active list: %+v", active)
	}
	if len(active[0].EventTypes) != 2 {
		t.Fatalf("event types were not round-tripped: %+v", active[0].EventTypes)
	}

	subscription.TargetURL = "https://example.test/hook-v2"
	updated, err := store.Save(ctx, subscription)
	if err != nil {
		t.Fatalf("update subscription: %v", err)
	}
	if updated.ID != subscription.ID || updated.TargetURL != "https://example.test/hook-v2" {
		t.Fatalf("upsert did not replace the row: %+v", updated)
	}

	if err := store.Deactivate(ctx, subscription.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	active, err = store.ListActive(ctx, "user.created")
	if err != nil {
		t.Fatalf("list active after deactivate: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("deactivated subscription still listed: %+v", active)
	}
	stored, err := store.Get(ctx, subscription.ID)
	if err != nil {
		t.Fatalf("get after deactivate: %v", err)
	}
	if stored.Active {
		t.Fatalf("subscription still active after deactivate")
	}

	if err := store.Deactivate(ctx, "sub_missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAttemptStore_ClaimLifecycle(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newStoreFactory(t)
	defer cleanup()

	event, subscription := seedEventAndSubscription(t, factory)
	attempts := factory.AttemptStore()
	dedupeKey := core.FanOutDedupeKey(event.ID, subscription.ID)

	attempt, created, err := attempts.CreatePending(ctx, event.ID, subscription.ID, dedupeKey)
	if err != nil {
		t.Fatalf("create pending: %v", err)
	}
	if !created || attempt.Status != core.AttemptStatusPending {
		t.Fatalf("unexpected attempt: created=%v %+v", created, attempt)
	}

	duplicate, created, err := attempts.CreatePending(ctx, event.ID, subscription.ID, dedupeKey)
	if err != nil {
		t.Fatalf("duplicate create: %v", err)
	}
	if created || duplicate.ID != attempt.ID {
		t.Fatalf("duplicate dedupe key must return the existing attempt: created=%v %+v", created, duplicate)
	}

	now := time.Now().UTC()
	claimed, ok, err := attempts.ClaimNextDue(ctx, now)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !ok || claimed.ID != attempt.ID || claimed.Status != core.AttemptStatusInFlight {
		t.Fatalf("unexpected claim: ok=%v %+v", ok, claimed)
	}
	if claimed.ClaimedAt == nil {
		t.Fatalf("claim must stamp claimed_at")
	}

	if _, ok, err := attempts.ClaimNextDue(ctx, now); err != nil || ok {
		t.Fatalf("in-flight attempt must not be claimable again: ok=%v err=%v", ok, err)
	}

	retryAt := now.Add(time.Minute)
	if err := attempts.MarkRetryable(ctx, attempt.ID, 503, "http_503: receiver returned 503", retryAt); err != nil {
		t.Fatalf("mark retryable: %v", err)
	}
	if _, ok, err := attempts.ClaimNextDue(ctx, now); err != nil || ok {
		t.Fatalf("attempt must stay parked until next_attempt_at: ok=%v err=%v", ok, err)
	}

	claimed, ok, err = attempts.ClaimNextDue(ctx, retryAt.Add(time.Second))
	if err != nil || !ok {
		t.Fatalf("due attempt must be claimable: ok=%v err=%v", ok, err)
	}
	if claimed.AttemptCount != 1 {
		t.Fatalf("retryable mark must bump attempt_count, got %d", claimed.AttemptCount)
	}

	if err := attempts.MarkSucceeded(ctx, attempt.ID, 200); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}
	if err := attempts.MarkSucceeded(ctx, attempt.ID, 200); !errors.Is(err, core.ErrStatusConflict) {
		t.Fatalf("marking a settled attempt must conflict, got %v", err)
	}

	final, err := attempts.Get(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("get attempt: %v", err)
	}
	if final.Status != core.AttemptStatusSucceeded || final.LastHTTPStatus != 200 {
		t.Fatalf("unexpected final attempt: %+v", final)
	}
}

func TestAttemptStore_ReleaseClaimKeepsAttemptCount(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newStoreFactory(t)
	defer cleanup()

	event, subscription := seedEventAndSubscription(t, factory)
	attempts := factory.AttemptStore()

	attempt, _, err := attempts.CreatePending(ctx, event.ID, subscription.ID, core.FanOutDedupeKey(event.ID, subscription.ID))
	if err != nil {
		t.Fatalf("create pending: %v", err)
	}

	// Releasing an unclaimed attempt must lose the CAS.
	retryAt := time.Now().UTC().Add(time.Second)
	if err := attempts.ReleaseClaim(ctx, attempt.ID, "infrastructure: storage offline", retryAt); !errors.Is(err, core.ErrStatusConflict) {
		t.Fatalf("expected conflict releasing an unclaimed attempt, got %v", err)
	}

	if _, ok, err := attempts.ClaimNextDue(ctx, time.Now().UTC()); err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}
	if err := attempts.ReleaseClaim(ctx, attempt.ID, "infrastructure: storage offline", retryAt); err != nil {
		t.Fatalf("release claim: %v", err)
	}

	released, err := attempts.Get(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("get attempt: %v", err)
	}
	if released.Status != core.AttemptStatusPending {
		t.Fatalf("release must return the attempt to pending, got %q", released.Status)
	}
	if released.AttemptCount != 0 {
		t.Fatalf("release must not consume the retry budget, attempt_count=%d", released.AttemptCount)
	}
	if released.ClaimedAt != nil {
		t.Fatalf("release must clear claimed_at")
	}
	if released.NextAttemptAt == nil || !released.NextAttemptAt.After(time.Now().UTC().Add(-time.Minute)) {
		t.Fatalf("release must defer the next claim, got %v", released.NextAttemptAt)
	}

	claimed, ok, err := attempts.ClaimNextDue(ctx, retryAt.Add(time.Second))
	if err != nil || !ok {
		t.Fatalf("released attempt must become claimable again: ok=%v err=%v", ok, err)
	}
	if claimed.AttemptCount != 0 {
		t.Fatalf("reclaim after release must see attempt_count 0, got %d", claimed.AttemptCount)
	}
}

func TestAttemptStore_ConcurrentClaimSingleWinner(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newStoreFactory(t)
	defer cleanup()

	event, subscription := seedEventAndSubscription(t, factory)
	attempts := factory.AttemptStore()

	if _, _, err := attempts.CreatePending(ctx, event.ID, subscription.ID, core.FanOutDedupeKey(event.ID, subscription.ID)); err != nil {
		t.Fatalf("create pending: %v", err)
	}

	const workers = 4
	start := make(chan struct{})
	var wg sync.WaitGroup
	wins := make([]bool, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, ok, err := attempts.ClaimNextDue(ctx, time.Now().UTC())
			wins[i], errs[i] = ok, err
		}(i)
	}
	close(start)
	wg.Wait()

	winners := 0
	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d claim error: %v", i, errs[i])
		}
		if wins[i] {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one claim winner, got %d", winners)
	}
}

func TestAttemptStore_ReclaimExpired(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newStoreFactory(t)
	defer cleanup()

	event, subscription := seedEventAndSubscription(t, factory)
	attempts := factory.AttemptStore()

	attempt, _, err := attempts.CreatePending(ctx, event.ID, subscription.ID, core.FanOutDedupeKey(event.ID, subscription.ID))
	if err != nil {
		t.Fatalf("create pending: %v", err)
	}
	if _, ok, err := attempts.ClaimNextDue(ctx, time.Now().UTC()); err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}

	// A cutoff in the past leaves fresh leases alone.
	reclaimed, err := attempts.ReclaimExpired(ctx, time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if reclaimed != 0 {
		t.Fatalf("fresh lease must not be reclaimed, got %d", reclaimed)
	}

	reclaimed, err = attempts.ReclaimExpired(ctx, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if reclaimed != 1 {
		t.Fatalf("expired lease must be reclaimed, got %d", reclaimed)
	}

	restored, err := attempts.Get(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("get attempt: %v", err)
	}
	if restored.Status != core.AttemptStatusPending || restored.ClaimedAt != nil {
		t.Fatalf("reclaim must return the attempt to pending: %+v", restored)
	}

	if _, ok, err := attempts.ClaimNextDue(ctx, time.Now().UTC()); err != nil || !ok {
		t.Fatalf("reclaimed attempt must be claimable: ok=%v err=%v", ok, err)
	}
}

func TestAttemptStore_List(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newStoreFactory(t)
	defer cleanup()

	event, subscription := seedEventAndSubscription(t, factory)
	attempts := factory.AttemptStore()

	if _, _, err := attempts.CreatePending(ctx, event.ID, subscription.ID, core.FanOutDedupeKey(event.ID, subscription.ID)); err != nil {
		t.Fatalf("create pending: %v", err)
	}

	page, err := attempts.List(ctx, core.DeliveryFilter{SubscriptionID: subscription.ID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 1 || len(page.Items) != 1 {
		t.Fatalf("unexpected page: %+v", page)
	}

	page, err = attempts.List(ctx, core.DeliveryFilter{Status: core.AttemptStatusSucceeded})
	if err != nil {
		t.Fatalf("list by status: %v", err)
	}
	if page.Total != 0 {
		t.Fatalf("expected empty page, got %+v", page)
	}
}

func TestDeadLetterStore_CreateTransitionStatistics(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newStoreFactory(t)
	defer cleanup()

	deadLetters := factory.DeadLetterStore()

	entry, created, err := deadLetters.Create(ctx, core.DeadLetterEntry{
		SourceKind:  core.SourceKindDelivery,
		SourceRefID: "att_1",
		PayloadSnapshot: map[string]any{
			"event_id":        "evt_1",
			"subscription_id": "sub_1",
		},
		FailureReason: "exhausted: 6 attempts, last failure http_503",
		Status:        core.DeadLetterStatusPending,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !created || entry.ID == "" {
		t.Fatalf("unexpected entry: created=%v %+v", created, entry)
	}

	duplicate, created, err := deadLetters.Create(ctx, core.DeadLetterEntry{
		SourceKind:    core.SourceKindDelivery,
		SourceRefID:   "att_1",
		FailureReason: "exhausted: retry of the same attempt",
		Status:        core.DeadLetterStatusPending,
	})
	if err != nil {
		t.Fatalf("duplicate create: %v", err)
	}
	if created || duplicate.ID != entry.ID {
		t.Fatalf("duplicate source must return the existing entry: created=%v %+v", created, duplicate)
	}

	if _, _, err := deadLetters.Create(ctx, core.DeadLetterEntry{
		SourceKind:    core.SourceKindBackgroundTask,
		SourceRefID:   "job_1",
		FailureReason: "job_failed: boom",
		Status:        core.DeadLetterStatusPending,
	}); err != nil {
		t.Fatalf("create background entry: %v", err)
	}

	at := time.Now().UTC()
	if err := deadLetters.Transition(ctx, entry.ID, core.DeadLetterStatusPending, core.DeadLetterStatusRetried, "ops@example.test", at); err != nil {
		t.Fatalf("transition: %v", err)
	}
	err = deadLetters.Transition(ctx, entry.ID, core.DeadLetterStatusPending, core.DeadLetterStatusResolved, "ops", at)
	if !errors.Is(err, core.ErrStatusConflict) {
		t.Fatalf("transition from wrong status must conflict, got %v", err)
	}
	err = deadLetters.Transition(ctx, "dl_missing", core.DeadLetterStatusPending, core.DeadLetterStatusResolved, "ops", at)
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("transition of missing entry must be not found, got %v", err)
	}

	retried, err := deadLetters.Get(ctx, entry.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if retried.Status != core.DeadLetterStatusRetried || retried.ResolvedBy != "ops@example.test" {
		t.Fatalf("unexpected entry after transition: %+v", retried)
	}
	if retried.ResolvedAt == nil {
		t.Fatalf("transition must stamp resolved_at")
	}

	page, err := deadLetters.List(ctx, core.DeadLetterFilter{Status: core.DeadLetterStatusPending})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 1 || page.Items[0].SourceKind != core.SourceKindBackgroundTask {
		t.Fatalf("unexpected pending page: %+v", page)
	}

	stats, err := deadLetters.Statistics(ctx)
	if err != nil {
		t.Fatalf("statistics: %v", err)
	}
	if stats.ByStatus[core.DeadLetterStatusPending] != 1 || stats.ByStatus[core.DeadLetterStatusRetried] != 1 {
		t.Fatalf("unexpected status counts: %+v", stats.ByStatus)
	}
	if stats.ByReason["exhausted"] != 1 || stats.ByReason["job_failed"] != 1 {
		t.Fatalf("unexpected reason counts: %+v", stats.ByReason)
	}
}
