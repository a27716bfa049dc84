package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func newTestClient(t *testing.T) (Client, *miniredis.Miniredis) {
	t.Helper()

	s := miniredis.RunT(t)
	t.Setenv("REDIS_ADDRESS", s.Addr())

	client, err := NewClient()
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	return client, s
}

func TestHsetAndHgetAll(t *testing.T) {
	ctx := context.Background()
	client, s := newTestClient(t)

	err := client.HsetToDb(ctx, "STATE_DB", "FIRMWARE|localhost", map[string]string{"kernel": "5.4.0", "libc": "uClibc 1.0.34"})
	if err != nil {
		t.Fatalf("hset failed: %v", err)
	}

	if got := s.DB(6).HGet("FIRMWARE|localhost", "kernel"); got != "5.4.0" {
		t.Errorf("kernel = %q, want 5.4.0", got)
	}

	values, err := client.HgetAllFromDb(ctx, "STATE_DB", "FIRMWARE|localhost")
	if err != nil {
		t.Fatalf("hgetall failed: %v", err)
	}
	if len(values) != 2 || values["libc"] != "uClibc 1.0.34" {
		t.Errorf("values = %v", values)
	}
}

func TestReplaceHashDropsStaleFields(t *testing.T) {
	ctx := context.Background()
	client, s := newTestClient(t)

	s.DB(6).HSet("FIRMWARE|localhost", "sdk", "V1 (V1)", "kernel", "4.9")

	if err := client.ReplaceHashInDb(ctx, "STATE_DB", "FIRMWARE|localhost", map[string]string{"kernel": "5.4.0"}); err != nil {
		t.Fatalf("replace failed: %v", err)
	}

	values, err := client.HgetAllFromDb(ctx, "STATE_DB", "FIRMWARE|localhost")
	if err != nil {
		t.Fatalf("hgetall failed: %v", err)
	}
	if len(values) != 1 || values["kernel"] != "5.4.0" {
		t.Errorf("values = %v", values)
	}

	if err := client.ReplaceHashInDb(ctx, "STATE_DB", "FIRMWARE|localhost", nil); err != nil {
		t.Fatalf("replace with empty hash failed: %v", err)
	}
	if s.DB(6).Exists("FIRMWARE|localhost") {
		t.Error("expected key to be removed")
	}
}

func TestUnknownDatabase(t *testing.T) {
	client, _ := newTestClient(t)

	if _, err := client.HgetAllFromDb(context.Background(), "NO_SUCH_DB", "key"); err == nil {
		t.Error("expected error for unknown database")
	}
}
