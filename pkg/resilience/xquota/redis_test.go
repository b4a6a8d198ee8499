//nolint:errcheck // 测试文件中的错误处理简化
package xquota

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// setupRedisStore 启动 miniredis 并创建配额存储
func setupRedisStore(t *testing.T, opts ...Option) (Store, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store, err := New(client, opts...)
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	t.Cleanup(func() { store.Close(context.Background()) })
	return store, mr
}

func TestRedisStore_ConsumeBasic(t *testing.T) {
	store, _ := setupRedisStore(t, WithService("email_send", ServiceLimit{Daily: 5}))
	ctx := context.Background()

	res, err := store.Consume(ctx, "acct-1", "email_send", 2)
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if !res.Allowed {
		t.Error("consume should be allowed")
	}
	if res.Remaining != 3 {
		t.Errorf("expected remaining 3, got %d", res.Remaining)
	}
	if res.Window != WindowDaily {
		t.Errorf("expected daily window, got %s", res.Window)
	}
}

func TestRedisStore_ExhaustAndDeny(t *testing.T) {
	store, _ := setupRedisStore(t, WithService("email_send", ServiceLimit{Daily: 3}))
	ctx := context.Background()

	if _, err := store.Consume(ctx, "acct-1", "email_send", 3); err != nil {
		t.Fatalf("Consume failed: %v", err)
	}

	res, err := store.Consume(ctx, "acct-1", "email_send", 1)
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if res.Allowed {
		t.Error("consume should be denied")
	}
	if res.Remaining != 0 {
		t.Errorf("expected remaining 0, got %d", res.Remaining)
	}
	if res.ResetAt.IsZero() {
		t.Error("denied result must carry reset time")
	}

	// 拒绝不产生写入
	counters, err := store.Query(ctx, "acct-1", "email_send")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if counters[0].Consumed != 3 {
		t.Errorf("denied consume must not mutate counter, got %d", counters[0].Consumed)
	}
}

func TestRedisStore_MultiWindowAtomicity(t *testing.T) {
	store, _ := setupRedisStore(t, WithService("email_send", ServiceLimit{Daily: 10, Weekly: 12}))
	ctx := context.Background()

	if _, err := store.Consume(ctx, "acct-1", "email_send", 10); err != nil {
		t.Fatalf("Consume failed: %v", err)
	}

	res, err := store.Consume(ctx, "acct-1", "email_send", 3)
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if res.Allowed {
		t.Error("weekly window should deny")
	}
	if res.Window != WindowWeekly {
		t.Errorf("expected weekly denial, got %s", res.Window)
	}

	counters, _ := store.Query(ctx, "acct-1", "email_send")
	for _, c := range counters {
		if c.Consumed != 10 {
			t.Errorf("window %s: expected consumed 10, got %d", c.Window, c.Consumed)
		}
	}
}

func TestRedisStore_CheckDoesNotWrite(t *testing.T) {
	store, _ := setupRedisStore(t, WithService("email_send", ServiceLimit{Daily: 5}))
	ctx := context.Background()

	res, err := store.Check(ctx, "acct-1", "email_send", 5)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !res.Allowed {
		t.Error("check should be allowed")
	}

	counters, _ := store.Query(ctx, "acct-1", "email_send")
	if counters[0].Consumed != 0 {
		t.Errorf("check must not write, got consumed %d", counters[0].Consumed)
	}
}

func TestRedisStore_ReleaseCompensation(t *testing.T) {
	store, _ := setupRedisStore(t, WithService("email_send", ServiceLimit{Daily: 10}))
	ctx := context.Background()

	store.Consume(ctx, "acct-1", "email_send", 4)
	if err := store.Release(ctx, "acct-1", "email_send", 4); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	counters, _ := store.Query(ctx, "acct-1", "email_send")
	if counters[0].Consumed != 0 {
		t.Errorf("consume+release must be net zero, got %d", counters[0].Consumed)
	}
}

func TestRedisStore_ReleaseFloor(t *testing.T) {
	store, _ := setupRedisStore(t, WithService("email_send", ServiceLimit{Daily: 10}))
	ctx := context.Background()

	store.Consume(ctx, "acct-1", "email_send", 2)
	if err := store.Release(ctx, "acct-1", "email_send", 5); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	counters, _ := store.Query(ctx, "acct-1", "email_send")
	if counters[0].Consumed != 0 {
		t.Errorf("release must floor at zero, got %d", counters[0].Consumed)
	}
}

func TestRedisStore_Reset(t *testing.T) {
	store, _ := setupRedisStore(t, WithService("email_send", ServiceLimit{Daily: 3}))
	ctx := context.Background()

	store.Consume(ctx, "acct-1", "email_send", 3)
	if err := store.Reset(ctx, "acct-1", "email_send"); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	res, err := store.Consume(ctx, "acct-1", "email_send", 1)
	if err != nil || !res.Allowed {
		t.Fatalf("consume after reset should pass: err=%v", err)
	}
}

func TestRedisStore_SubjectIsolation(t *testing.T) {
	store, _ := setupRedisStore(t, WithService("email_send", ServiceLimit{Daily: 2}))
	ctx := context.Background()

	store.Consume(ctx, "acct-1", "email_send", 2)

	res, err := store.Consume(ctx, "acct-2", "email_send", 1)
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if !res.Allowed {
		t.Error("quotas must be isolated per subject")
	}
}

func TestRedisStore_KeyTTL(t *testing.T) {
	store, mr := setupRedisStore(t,
		WithService("email_send", ServiceLimit{Daily: 5}),
		WithKeyPrefix("q:"),
	)
	ctx := context.Background()

	store.Consume(ctx, "acct-1", "email_send", 1)

	keys := mr.Keys()
	if len(keys) != 1 {
		t.Fatalf("expected 1 key, got %v", keys)
	}
	if ttl := mr.TTL(keys[0]); ttl <= 0 {
		t.Errorf("counter key must carry a TTL, got %v", ttl)
	}
}

func TestRedisStore_UnknownService(t *testing.T) {
	store, _ := setupRedisStore(t, WithService("email_send", ServiceLimit{Daily: 5}))

	_, err := store.Consume(context.Background(), "acct-1", "mystery", 1)
	if !errors.Is(err, ErrUnknownService) {
		t.Fatalf("expected ErrUnknownService, got %v", err)
	}
}

func TestRedisStore_ServerDown(t *testing.T) {
	store, mr := setupRedisStore(t, WithService("email_send", ServiceLimit{Daily: 5}))

	mr.Close()

	_, err := store.Consume(context.Background(), "acct-1", "email_send", 1)
	if err == nil {
		t.Fatal("expected error when server is down")
	}
	if !IsStoreError(err) {
		t.Errorf("connection failure should classify as store error: %v", err)
	}
}
