package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(s.Close)

	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() {
		if err := rdb.Close(); err != nil {
			t.Fatalf("close redis: %v", err)
		}
	})
	return s, rdb
}

func TestDeduplicator_Claim(t *testing.T) {
	_, rdb := newTestRedis(t)
	d := NewDeduplicator(rdb, "test:", time.Minute)
	ctx := context.Background()

	ok, err := d.Claim(ctx, "task:1:slot:100")
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if !ok {
		t.Fatalf("expected first claim to succeed")
	}

	ok, err = d.Claim(ctx, "task:1:slot:100")
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if ok {
		t.Fatalf("expected second claim to be rejected")
	}

	ok, _ = d.Claim(ctx, "task:1:slot:101")
	if !ok {
		t.Fatalf("expected a different key to be claimable")
	}
}

func TestDeduplicator_Expires(t *testing.T) {
	s, rdb := newTestRedis(t)
	d := NewDeduplicator(rdb, "", time.Minute)
	ctx := context.Background()

	if ok, _ := d.Claim(ctx, "k"); !ok {
		t.Fatalf("expected claim")
	}
	s.FastForward(2 * time.Minute)
	if ok, _ := d.Claim(ctx, "k"); !ok {
		t.Fatalf("expected claim after ttl")
	}
	if ok, _ := d.Claim(ctx, "k"); ok {
		t.Fatalf("expected renewed claim to block again")
	}
}

func TestDeduplicator_NilClientAlwaysClaims(t *testing.T) {
	var d *Deduplicator
	ok, err := d.Claim(context.Background(), "anything")
	if err != nil || !ok {
		t.Fatalf("nil deduplicator should always claim, got %v %v", ok, err)
	}
	ok, _ = NewDeduplicator(nil, "", 0).Claim(context.Background(), "anything")
	if !ok {
		t.Fatalf("deduplicator without redis should always claim")
	}
}
