package newsletter

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/parteiportal/backend/internal/apperror"
)

func encodeTarget(t *testing.T, raw string) string {
	t.Helper()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func TestRecipientTokenIsStableAndCaseInsensitive(t *testing.T) {
	first := RecipientToken("nl-1", "Person@Example.org")
	second := RecipientToken("nl-1", "person@example.org ")
	if first != second {
		t.Fatalf("expected identical tokens, got %s and %s", first, second)
	}
	if len(first) != 16 {
		t.Fatalf("expected 16-char token, got %d", len(first))
	}
	if RecipientToken("nl-2", "person@example.org") == first {
		t.Fatalf("expected token to depend on the newsletter")
	}
}

func TestTrackOpenCountsToken(t *testing.T) {
	fixture := newTestService(t, []string{"nl-1"}, 25)
	ctx := context.Background()
	item := mustCreateDraft(t, fixture.service, "a@example.org")
	token := RecipientToken(item.ID, "a@example.org")

	if err := fixture.service.TrackOpen(ctx, item.ID, token); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := fixture.service.TrackOpen(ctx, item.ID, token); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var stored Item
	if err := fixture.db.First(&stored, "id = ?", item.ID).Error; err != nil {
		t.Fatalf("failed to load item: %v", err)
	}
	state, err := DecodeTrackingState(stored.TrackingJSON)
	if err != nil {
		t.Fatalf("failed to decode tracking state: %v", err)
	}
	if state.Opens[token] != 2 {
		t.Fatalf("expected 2 opens, got %d", state.Opens[token])
	}
}

func TestTrackOpenRejectsEmptyToken(t *testing.T) {
	fixture := newTestService(t, []string{"nl-1"}, 25)
	item := mustCreateDraft(t, fixture.service, "a@example.org")

	err := fixture.service.TrackOpen(context.Background(), item.ID, "  ")
	serviceErr, ok := apperror.AsServiceError(err)
	if !ok || serviceErr.Kind() != apperror.KindInvalid {
		t.Fatalf("expected invalid kind, got %v", err)
	}
}

func TestResolveClickRedirectsToAllowedHost(t *testing.T) {
	fixture := newTestService(t, []string{"nl-1"}, 25)
	ctx := context.Background()
	item := mustCreateDraft(t, fixture.service, "a@example.org")

	target, err := fixture.service.ResolveClick(ctx, item.ID,
		encodeTarget(t, "https://partei.example.org/termine?monat=3"),
		[]string{"partei.example.org"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if target != "https://partei.example.org/termine?monat=3" {
		t.Fatalf("unexpected target %s", target)
	}

	var stored Item
	if err := fixture.db.First(&stored, "id = ?", item.ID).Error; err != nil {
		t.Fatalf("failed to load item: %v", err)
	}
	state, err := DecodeTrackingState(stored.TrackingJSON)
	if err != nil {
		t.Fatalf("failed to decode tracking state: %v", err)
	}
	if state.Clicks[target] != 1 {
		t.Fatalf("expected 1 click, got %d", state.Clicks[target])
	}
}

func TestResolveClickAllowsSubdomains(t *testing.T) {
	fixture := newTestService(t, []string{"nl-1"}, 25)
	item := mustCreateDraft(t, fixture.service, "a@example.org")

	_, err := fixture.service.ResolveClick(context.Background(), item.ID,
		encodeTarget(t, "https://blog.partei.example.org/artikel"),
		[]string{"partei.example.org"})
	if err != nil {
		t.Fatalf("expected subdomain to be allowed, got %v", err)
	}
}

func TestResolveClickRejectsDisallowedHost(t *testing.T) {
	fixture := newTestService(t, []string{"nl-1"}, 25)
	item := mustCreateDraft(t, fixture.service, "a@example.org")

	_, err := fixture.service.ResolveClick(context.Background(), item.ID,
		encodeTarget(t, "https://phishing.example.net/login"),
		[]string{"partei.example.org"})
	serviceErr, ok := apperror.AsServiceError(err)
	if !ok || serviceErr.Kind() != apperror.KindInvalid {
		t.Fatalf("expected invalid kind, got %v", err)
	}
}

func TestResolveClickRejectsNonHTTPSchemes(t *testing.T) {
	fixture := newTestService(t, []string{"nl-1"}, 25)
	item := mustCreateDraft(t, fixture.service, "a@example.org")

	_, err := fixture.service.ResolveClick(context.Background(), item.ID,
		encodeTarget(t, "javascript:alert(1)"),
		[]string{"partei.example.org"})
	serviceErr, ok := apperror.AsServiceError(err)
	if !ok || serviceErr.Kind() != apperror.KindInvalid {
		t.Fatalf("expected invalid kind, got %v", err)
	}
}

func TestResolveClickRejectsBadEncoding(t *testing.T) {
	fixture := newTestService(t, []string{"nl-1"}, 25)
	item := mustCreateDraft(t, fixture.service, "a@example.org")

	_, err := fixture.service.ResolveClick(context.Background(), item.ID,
		"%%%not-base64%%%",
		[]string{"partei.example.org"})
	serviceErr, ok := apperror.AsServiceError(err)
	if !ok || serviceErr.Kind() != apperror.KindInvalid {
		t.Fatalf("expected invalid kind, got %v", err)
	}
}

func TestResolveClickAcceptsPaddedEncoding(t *testing.T) {
	fixture := newTestService(t, []string{"nl-1"}, 25)
	item := mustCreateDraft(t, fixture.service, "a@example.org")

	encoded := base64.URLEncoding.EncodeToString([]byte("https://partei.example.org/a"))
	target, err := fixture.service.ResolveClick(context.Background(), item.ID, encoded, []string{"partei.example.org"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if target != "https://partei.example.org/a" {
		t.Fatalf("unexpected target %s", target)
	}
}
