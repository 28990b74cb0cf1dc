package newsletter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/parteiportal/backend/internal/apperror"
	"github.com/parteiportal/backend/internal/mailer"
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

// stubMailer fails every recipient listed in failing and records admin
// notices sent through Send.
type stubMailer struct {
	mu           sync.Mutex
	failing      map[string]error
	batchCalls   int
	adminNotices []string
	onBatch      func()
}

func (m *stubMailer) Send(_ context.Context, to, _, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adminNotices = append(m.adminNotices, to)
	return nil
}

func (m *stubMailer) SendBatch(_ context.Context, recipients []string, _, _ string) []mailer.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchCalls++
	if m.onBatch != nil {
		m.onBatch()
	}
	results := make([]mailer.Result, 0, len(recipients))
	for _, recipient := range recipients {
		results = append(results, mailer.Result{Recipient: recipient, Err: m.failing[recipient]})
	}
	return results
}

type stubAdminDirectory struct {
	recipients []string
}

func (d stubAdminDirectory) AdminRecipients(_ context.Context) ([]string, error) {
	return d.recipients, nil
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []ProgressEvent
}

func (p *capturingPublisher) PublishProgress(event ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

type testFixture struct {
	service   *Service
	db        *gorm.DB
	mail      *stubMailer
	publisher *capturingPublisher
}

func newTestService(t *testing.T, ids []string, chunkSize int) testFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:newsletter_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Item{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	mail := &stubMailer{failing: map[string]error{}}
	publisher := &capturingPublisher{}
	service, err := NewService(ServiceConfig{
		Database:    db,
		Mailer:      mail,
		Admins:      stubAdminDirectory{recipients: []string{"vorstand@example.org"}},
		Progress:    publisher,
		Clock:       func() time.Time { return time.Unix(1750000000, 0).UTC() },
		IDProvider:  &staticIDGenerator{ids: ids},
		ChunkSize:   chunkSize,
		MaxAttempts: 3,
	})
	if err != nil {
		t.Fatalf("failed to construct newsletter service: %v", err)
	}
	return testFixture{service: service, db: db, mail: mail, publisher: publisher}
}

func mustCreateDraft(t *testing.T, service *Service, recipients ...string) Item {
	t.Helper()
	item, err := service.Create(context.Background(), CreateInput{
		Subject:    "Neues aus dem Ortsverband",
		BodyHTML:   "<p>Hallo!</p>",
		Recipients: recipients,
	})
	if err != nil {
		t.Fatalf("failed to create draft: %v", err)
	}
	return item
}

func TestCreateNormalizesRecipients(t *testing.T) {
	fixture := newTestService(t, []string{"nl-1"}, 25)

	item := mustCreateDraft(t, fixture.service, "A@example.org", "a@example.org", " b@example.org ", "")
	recipients, err := item.Recipients()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recipients) != 2 || recipients[0] != "a@example.org" || recipients[1] != "b@example.org" {
		t.Fatalf("unexpected recipients %v", recipients)
	}
	if item.Version != 1 {
		t.Fatalf("expected version 1, got %d", item.Version)
	}
}

func TestUpdateRejectsNonDraft(t *testing.T) {
	fixture := newTestService(t, []string{"nl-1"}, 25)
	ctx := context.Background()
	item := mustCreateDraft(t, fixture.service, "a@example.org")

	if _, err := fixture.service.SendChunk(ctx, item.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	subject := "Geändert"
	_, err := fixture.service.Update(ctx, item.ID, UpdateInput{Subject: &subject})
	serviceErr, ok := apperror.AsServiceError(err)
	if !ok || serviceErr.Kind() != apperror.KindInvalid {
		t.Fatalf("expected invalid kind for non-draft edit, got %v", err)
	}
}

func TestSendChunkDeliversAllRecipientsAndFinishes(t *testing.T) {
	fixture := newTestService(t, []string{"nl-1"}, 25)
	ctx := context.Background()
	item := mustCreateDraft(t, fixture.service, "a@example.org", "b@example.org")

	report, err := fixture.service.SendChunk(ctx, item.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.Done || report.Status != StatusSent {
		t.Fatalf("expected finished SENT run, got %#v", report)
	}
	if report.Delivered != 2 || report.Permanent != 0 {
		t.Fatalf("unexpected counts %#v", report)
	}

	var stored Item
	if err := fixture.db.First(&stored, "id = ?", item.ID).Error; err != nil {
		t.Fatalf("failed to load item: %v", err)
	}
	if stored.Status != StatusSent || stored.SentAt == nil {
		t.Fatalf("expected stored SENT state, got %#v", stored)
	}
	if stored.Version != 2 {
		t.Fatalf("expected version bump to 2, got %d", stored.Version)
	}
}

func TestSendChunkProcessesAtMostChunkSizeRecipients(t *testing.T) {
	fixture := newTestService(t, []string{"nl-1"}, 2)
	ctx := context.Background()
	item := mustCreateDraft(t, fixture.service, "a@example.org", "b@example.org", "c@example.org")

	report, err := fixture.service.SendChunk(ctx, item.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Processed != 2 || report.Pending != 1 || report.Done {
		t.Fatalf("expected partial chunk, got %#v", report)
	}
	if report.Status != StatusSending {
		t.Fatalf("expected SENDING, got %s", report.Status)
	}

	report, err = fixture.service.SendChunk(ctx, item.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.Done || report.Status != StatusSent {
		t.Fatalf("expected run to finish, got %#v", report)
	}
}

func TestSendChunkRetriesFailuresUntilPermanent(t *testing.T) {
	fixture := newTestService(t, []string{"nl-1"}, 25)
	ctx := context.Background()
	fixture.mail.failing["broken@example.org"] = errors.New("mailbox full")
	item := mustCreateDraft(t, fixture.service, "ok@example.org", "broken@example.org")

	report, err := fixture.service.SendChunk(ctx, item.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Status != StatusRetrying || report.Done {
		t.Fatalf("expected RETRYING after first failure, got %#v", report)
	}

	// Attempts 2 and 3: the third failure marks the recipient permanent.
	if _, err := fixture.service.SendChunk(ctx, item.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	report, err = fixture.service.SendChunk(ctx, item.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.Done || report.Status != StatusFailed {
		t.Fatalf("expected FAILED run, got %#v", report)
	}
	if report.Delivered != 1 || report.Permanent != 1 {
		t.Fatalf("unexpected counts %#v", report)
	}
}

func TestSendChunkNotifiesAdminsExactlyOnce(t *testing.T) {
	fixture := newTestService(t, []string{"nl-1"}, 1)
	ctx := context.Background()
	fixture.mail.failing["kaputt@example.org"] = errors.New("unknown recipient")
	fixture.mail.failing["defekt@example.org"] = errors.New("unknown recipient")
	item := mustCreateDraft(t, fixture.service, "kaputt@example.org", "defekt@example.org")

	// Chunk size 1: each recipient needs three attempts before it turns
	// permanent, so the two failures surface in different chunks.
	for i := 0; i < 6; i++ {
		if _, err := fixture.service.SendChunk(ctx, item.ID); err != nil {
			t.Fatalf("chunk %d: unexpected error: %v", i, err)
		}
	}

	if len(fixture.mail.adminNotices) != 1 {
		t.Fatalf("expected exactly one admin notice, got %v", fixture.mail.adminNotices)
	}
	if fixture.mail.adminNotices[0] != "vorstand@example.org" {
		t.Fatalf("unexpected notice recipient %s", fixture.mail.adminNotices[0])
	}
}

func TestSendChunkRejectsFinishedNewsletter(t *testing.T) {
	fixture := newTestService(t, []string{"nl-1"}, 25)
	ctx := context.Background()
	item := mustCreateDraft(t, fixture.service, "a@example.org")

	if _, err := fixture.service.SendChunk(ctx, item.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := fixture.service.SendChunk(ctx, item.ID)
	serviceErr, ok := apperror.AsServiceError(err)
	if !ok || serviceErr.Kind() != apperror.KindConflict {
		t.Fatalf("expected conflict for finished run, got %v", err)
	}
}

func TestSendChunkRejectsDraftWithoutRecipients(t *testing.T) {
	fixture := newTestService(t, []string{"nl-1"}, 25)

	item := mustCreateDraft(t, fixture.service)
	_, err := fixture.service.SendChunk(context.Background(), item.ID)
	serviceErr, ok := apperror.AsServiceError(err)
	if !ok || serviceErr.Kind() != apperror.KindInvalid {
		t.Fatalf("expected invalid kind, got %v", err)
	}
}

func TestSendChunkDetectsStaleVersion(t *testing.T) {
	fixture := newTestService(t, []string{"nl-1"}, 25)
	ctx := context.Background()
	item := mustCreateDraft(t, fixture.service, "a@example.org")

	// A concurrent writer bumps the version between load and write. The batch
	// call sits exactly in that window.
	fixture.mail.onBatch = func() {
		bump := fixture.db.Model(&Item{}).Where("id = ?", item.ID).Update("version", item.Version+1)
		if bump.Error != nil {
			t.Errorf("failed to bump version: %v", bump.Error)
		}
	}

	_, err := fixture.service.SendChunk(ctx, item.ID)
	if err == nil {
		t.Fatalf("expected stale version conflict")
	}
	serviceErr, ok := apperror.AsServiceError(err)
	if !ok || serviceErr.Kind() != apperror.KindConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	if !strings.Contains(serviceErr.Code(), "stale_version") {
		t.Fatalf("unexpected code %s", serviceErr.Code())
	}
}

func TestSendChunkPublishesProgress(t *testing.T) {
	fixture := newTestService(t, []string{"nl-1"}, 25)
	ctx := context.Background()
	item := mustCreateDraft(t, fixture.service, "a@example.org")

	if _, err := fixture.service.SendChunk(ctx, item.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fixture.publisher.events) != 1 {
		t.Fatalf("expected one progress event, got %d", len(fixture.publisher.events))
	}
	event := fixture.publisher.events[0]
	if event.NewsletterID != item.ID || !event.Done || event.Delivered != 1 {
		t.Fatalf("unexpected event %#v", event)
	}
}

func TestDeleteRejectsNonDraft(t *testing.T) {
	fixture := newTestService(t, []string{"nl-1"}, 25)
	ctx := context.Background()
	item := mustCreateDraft(t, fixture.service, "a@example.org")

	if _, err := fixture.service.SendChunk(ctx, item.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := fixture.service.Delete(ctx, item.ID)
	serviceErr, ok := apperror.AsServiceError(err)
	if !ok || serviceErr.Kind() != apperror.KindInvalid {
		t.Fatalf("expected invalid kind, got %v", err)
	}
}
