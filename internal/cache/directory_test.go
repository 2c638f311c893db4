package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"teaminova/internal/domain"
	"teaminova/internal/viewmodel"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestDirectoryMissThenHit(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()
	dir := NewDirectory(client, time.Minute)

	var calls int
	load := func(context.Context) ([]viewmodel.Member, error) {
		calls++
		return []viewmodel.Member{{ID: "u1", Name: "Ana", Email: "ana@example.com", Role: domain.RoleDeveloper}}, nil
	}

	for i := 0; i < 2; i++ {
		members, err := dir.Members(ctx, load)
		if err != nil {
			t.Fatalf("members: %v", err)
		}
		if len(members) != 1 || members[0].Email != "ana@example.com" || members[0].Role != domain.RoleDeveloper {
			t.Fatalf("unexpected members: %#v", members)
		}
	}
	if calls != 1 {
		t.Fatalf("expected one store read, got %d", calls)
	}
	if ttl := mr.TTL(directoryKey); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected TTL: %v", ttl)
	}

	dir.Evict(ctx)
	if mr.Exists(directoryKey) {
		t.Fatalf("expected key evicted")
	}
	if _, err := dir.Members(ctx, load); err != nil {
		t.Fatalf("members: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected reload after evict, got %d calls", calls)
	}
}

func TestDirectoryCorruptEntryFallsBack(t *testing.T) {
	mr, client := newRedis(t)
	if err := mr.Set(directoryKey, "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	dir := NewDirectory(client, 0)
	members, err := dir.Members(context.Background(), func(context.Context) ([]viewmodel.Member, error) {
		return []viewmodel.Member{{ID: "u2"}}, nil
	})
	if err != nil || len(members) != 1 {
		t.Fatalf("unexpected result: %v %#v", err, members)
	}
	if mr.Exists(directoryKey) {
		t.Fatalf("zero ttl must not store")
	}
}

func TestNilDirectoryReadsThrough(t *testing.T) {
	var dir *Directory
	want := errors.New("store down")
	_, err := dir.Members(context.Background(), func(context.Context) ([]viewmodel.Member, error) { return nil, want })
	if !errors.Is(err, want) {
		t.Fatalf("expected store error, got %v", err)
	}
	dir.Evict(context.Background())
}
