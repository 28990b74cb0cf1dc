package antrag

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/parteiportal/backend/internal/apperror"
)

type staticIDGenerator struct {
	ids   []string
	index int
}

func (g *staticIDGenerator) NewID() (string, error) {
	if g.index >= len(g.ids) {
		return "", errors.New("exhausted ids")
	}
	id := g.ids[g.index]
	g.index++
	return id, nil
}

func newTestService(t *testing.T, ids []string) (*Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:antrag_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Antrag{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	service, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      func() time.Time { return time.Unix(1750000000, 0).UTC() },
		IDProvider: &staticIDGenerator{ids: ids},
	})
	if err != nil {
		t.Fatalf("failed to construct antrag service: %v", err)
	}
	return service, db
}

func mustCreateAntrag(t *testing.T, service *Service, applicantID string) Antrag {
	t.Helper()
	item, err := service.Create(context.Background(), CreateInput{
		ApplicantID: applicantID,
		Title:       "Beamer für Infostände",
		Purpose:     "Präsentationen bei Veranstaltungen",
		AmountCents: 45000,
	})
	if err != nil {
		t.Fatalf("failed to create antrag: %v", err)
	}
	return item
}

func TestCreateStartsInNeuStatus(t *testing.T) {
	service, _ := newTestService(t, []string{"antrag-1"})

	item := mustCreateAntrag(t, service, "user-1")
	if item.Status != StatusNeu {
		t.Fatalf("expected NEU, got %s", item.Status)
	}
}

func TestCreateRejectsNegativeAmount(t *testing.T) {
	service, _ := newTestService(t, []string{"antrag-1"})

	_, err := service.Create(context.Background(), CreateInput{
		ApplicantID: "user-1",
		Title:       "Titel",
		Purpose:     "Zweck",
		AmountCents: -1,
	})
	serviceErr, ok := apperror.AsServiceError(err)
	if !ok || serviceErr.Kind() != apperror.KindInvalid {
		t.Fatalf("expected invalid kind, got %v", err)
	}
}

func TestUpdateRejectsForeignApplicant(t *testing.T) {
	service, _ := newTestService(t, []string{"antrag-1"})
	item := mustCreateAntrag(t, service, "user-1")

	title := "Anderer Titel"
	_, err := service.Update(context.Background(), item.ID, "user-2", UpdateInput{Title: &title})
	serviceErr, ok := apperror.AsServiceError(err)
	if !ok || serviceErr.Kind() != apperror.KindForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestUpdateRejectsDecidedAntrag(t *testing.T) {
	service, _ := newTestService(t, []string{"antrag-1"})
	ctx := context.Background()
	item := mustCreateAntrag(t, service, "user-1")
	if _, err := service.Decide(ctx, item.ID, "admin-1", true, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	title := "Nachträglich geändert"
	_, err := service.Update(ctx, item.ID, "user-1", UpdateInput{Title: &title})
	serviceErr, ok := apperror.AsServiceError(err)
	if !ok || serviceErr.Kind() != apperror.KindForbidden {
		t.Fatalf("expected forbidden for decided antrag, got %v", err)
	}
	if serviceErr.Message() != msgNotEditable {
		t.Fatalf("unexpected message %q", serviceErr.Message())
	}
}

func TestUpdatePatchesFieldsWhileNeu(t *testing.T) {
	service, _ := newTestService(t, []string{"antrag-1"})
	item := mustCreateAntrag(t, service, "user-1")

	amount := int64(30000)
	updated, err := service.Update(context.Background(), item.ID, "user-1", UpdateInput{AmountCents: &amount})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.AmountCents != 30000 {
		t.Fatalf("expected amount 30000, got %d", updated.AmountCents)
	}
	if updated.Title != item.Title {
		t.Fatalf("expected title untouched, got %s", updated.Title)
	}
}

func TestDecideRejectsSecondDecision(t *testing.T) {
	service, _ := newTestService(t, []string{"antrag-1"})
	ctx := context.Background()
	item := mustCreateAntrag(t, service, "user-1")

	decided, err := service.Decide(ctx, item.ID, "admin-1", false, "Kein Budget.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decided.Status != StatusAbgelehnt {
		t.Fatalf("expected ABGELEHNT, got %s", decided.Status)
	}

	_, err = service.Decide(ctx, item.ID, "admin-2", true, "")
	serviceErr, ok := apperror.AsServiceError(err)
	if !ok || serviceErr.Kind() != apperror.KindConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestListFiltersByApplicant(t *testing.T) {
	service, _ := newTestService(t, []string{"antrag-1", "antrag-2"})
	ctx := context.Background()
	mine := mustCreateAntrag(t, service, "user-1")
	mustCreateAntrag(t, service, "user-2")

	items, err := service.List(ctx, "user-1", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 || items[0].ID != mine.ID {
		t.Fatalf("unexpected items %#v", items)
	}
}
