package auth_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/producthelper/producthelper/internal/auth"
	"github.com/producthelper/producthelper/internal/store"
	"github.com/producthelper/producthelper/pkg/models"
)

func newTestService(t *testing.T) *auth.Service {
	t.Helper()
	st := store.NewMemoryStore("")
	svc, err := auth.NewService(st, 1024, time.Minute)
	if err != nil {
		t.Fatalf("NewService() error: %v", err)
	}
	t.Cleanup(func() {
		svc.Close()
		st.Close()
	})
	return svc
}

func TestGenerate_KeyShape(t *testing.T) {
	svc := newTestService(t)

	key, rec, err := svc.Generate(context.Background(), 42, "ci-bot")
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if !auth.IsValidKeyFormat(key) {
		t.Errorf("Generated key %q does not match the key format", key)
	}
	if !strings.HasPrefix(key, "ph_00000042_") {
		t.Errorf("Generated key %q lacks zero-padded project prefix", key)
	}
	if rec.KeyPrefix != "ph_00000042" {
		t.Errorf("KeyPrefix = %q, want %q", rec.KeyPrefix, "ph_00000042")
	}
	if rec.KeyHash != auth.HashKey(key) {
		t.Errorf("KeyHash = %q, want digest of the full key", rec.KeyHash)
	}
	if rec.ProjectID != 42 || rec.Name != "ci-bot" {
		t.Errorf("record = project %d name %q, want 42 %q", rec.ProjectID, rec.Name, "ci-bot")
	}
	if rec.ID == "" {
		t.Error("record has no id")
	}
	if rec.RevokedAt != nil {
		t.Error("fresh key is already revoked")
	}
}

func TestGenerate_DistinctSecrets(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	first, _, err := svc.Generate(ctx, 1, "a")
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	second, _, err := svc.Generate(ctx, 1, "b")
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if first == second {
		t.Errorf("two generated keys are identical: %q", first)
	}
}

func TestGenerate_ProjectIDRange(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, _, err := svc.Generate(ctx, -1, "x"); err == nil {
		t.Error("Generate(-1) succeeded, want error")
	}
	if _, _, err := svc.Generate(ctx, models.MaxProjectID+1, "x"); err == nil {
		t.Errorf("Generate(%d) succeeded, want error", models.MaxProjectID+1)
	}
	if _, _, err := svc.Generate(ctx, models.MaxProjectID, "x"); err != nil {
		t.Errorf("Generate(%d) error: %v", models.MaxProjectID, err)
	}
}

func TestValidate_HappyPath(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	key, rec, err := svc.Generate(ctx, 42, "ci-bot")
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}

	// Validate twice so the second call can be served from cache.
	for i := 0; i < 2; i++ {
		got, ok := svc.Validate(ctx, key, 42)
		if !ok {
			t.Fatalf("Validate() attempt %d rejected a live key", i+1)
		}
		if got.ID != rec.ID {
			t.Errorf("Validate() attempt %d returned key %q, want %q", i+1, got.ID, rec.ID)
		}
	}
}

func TestValidate_FailsClosed(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	key, _, err := svc.Generate(ctx, 42, "ci-bot")
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}

	if _, ok := svc.Validate(ctx, "not-a-key", 42); ok {
		t.Error("malformed key validated")
	}
	if _, ok := svc.Validate(ctx, key, 7); ok {
		t.Error("key validated against the wrong project")
	}
	// Well-formed but never issued.
	absent := auth.FormatKey(42, strings.Repeat("a", 24))
	if _, ok := svc.Validate(ctx, absent, 42); ok {
		t.Error("unknown key validated")
	}
}

func TestValidate_RevokedKeyRejected(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	key, rec, err := svc.Generate(ctx, 42, "ci-bot")
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	// Warm the validation cache before revoking.
	if _, ok := svc.Validate(ctx, key, 42); !ok {
		t.Fatal("Validate() rejected a live key")
	}

	revoked, err := svc.Revoke(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Revoke() error: %v", err)
	}
	if revoked.RevokedAt == nil {
		t.Fatal("Revoke() did not set RevokedAt")
	}

	if _, ok := svc.Validate(ctx, key, 42); ok {
		t.Error("revoked key still validates")
	}
}

func TestRevoke_RepeatKeepsFirstTimestamp(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, rec, err := svc.Generate(ctx, 42, "ci-bot")
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	first, err := svc.Revoke(ctx, rec.ID)
	if err != nil {
		t.Fatalf("first Revoke() error: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	second, err := svc.Revoke(ctx, rec.ID)
	if err != nil {
		t.Fatalf("second Revoke() error: %v", err)
	}
	if !second.RevokedAt.Equal(*first.RevokedAt) {
		t.Errorf("second revoke moved RevokedAt from %v to %v", first.RevokedAt, second.RevokedAt)
	}
}

func TestRevoke_UnknownID(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Revoke(context.Background(), "no-such-id")
	var nf *store.ErrNotFound
	if !errors.As(err, &nf) {
		t.Errorf("Revoke(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestValidate_CacheDisabled(t *testing.T) {
	st := store.NewMemoryStore("")
	svc, err := auth.NewService(st, 0, time.Minute)
	if err != nil {
		t.Fatalf("NewService() error: %v", err)
	}
	t.Cleanup(func() {
		svc.Close()
		st.Close()
	})
	ctx := context.Background()

	key, rec, err := svc.Generate(ctx, 3, "nocache")
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if _, ok := svc.Validate(ctx, key, 3); !ok {
		t.Fatal("Validate() rejected a live key")
	}
	if _, err := svc.Revoke(ctx, rec.ID); err != nil {
		t.Fatalf("Revoke() error: %v", err)
	}
	if _, ok := svc.Validate(ctx, key, 3); ok {
		t.Error("revoked key still validates")
	}
}
