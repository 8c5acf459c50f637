package middleware_test

import (
	"context"
	"strings"
	"testing"

	"github.com/aretw0/strata/pkg/adapters/memory"
	"github.com/aretw0/strata/pkg/persistence/middleware"
)

func TestPIIMiddleware(t *testing.T) {
	store := memory.NewStore()
	mw, err := middleware.NewPIIMiddleware(middleware.DefaultPIIPatterns)
	if err != nil {
		t.Fatal(err)
	}
	masked := mw(store)
	ctx := context.Background()

	content := "mail ana@example.com, key sk-abcdefghijklmnop1234, card 4111 1111 1111 1111"
	if _, err := masked.Append(ctx, entry(content)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	got, err := store.QueryRecent(ctx, "coder", nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	stored := got[0].Content
	for _, leaked := range []string{"ana@example.com", "sk-abcdefghijklmnop1234", "4111 1111"} {
		if strings.Contains(stored, leaked) {
			t.Errorf("Expected %q to be masked in %q", leaked, stored)
		}
	}
	if !strings.HasPrefix(stored, "mail ***") {
		t.Errorf("Unexpected masked content %q", stored)
	}
}

func TestPIIMiddleware_InvalidPattern(t *testing.T) {
	if _, err := middleware.NewPIIMiddleware([]string{"("}); err == nil {
		t.Fatal("Expected an error for an invalid pattern")
	}
}

func TestChain_Order(t *testing.T) {
	store := memory.NewStore()
	pii, _ := middleware.NewPIIMiddleware([]string{"secret"})
	enc, _ := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})

	// Masking runs before encryption, so the decrypted view is masked too.
	chained := middleware.Chain(store, pii, enc)
	ctx := context.Background()
	if _, err := chained.Append(ctx, entry("top secret plan")); err != nil {
		t.Fatal(err)
	}
	got, err := chained.QueryRecent(ctx, "coder", nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Content != "top *** plan" {
		t.Errorf("Unexpected content %q", got[0].Content)
	}
}
