package groups

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

	dsn := fmt.Sprintf("file:groups_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Group{}, &Member{}, &ResponsiblePerson{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	service, err := NewService(ServiceConfig{
		Database:   db,
		IDProvider: &staticIDGenerator{ids: ids},
	})
	if err != nil {
		t.Fatalf("failed to construct group service: %v", err)
	}
	return service, db
}

func mustCreateGroup(t *testing.T, service *Service, name string) Group {
	t.Helper()
	group, err := service.Create(context.Background(), CreateInput{Name: name})
	if err != nil {
		t.Fatalf("failed to create group: %v", err)
	}
	return group
}

func TestCreateRejectsInvalidSchedule(t *testing.T) {
	service, _ := newTestService(t, []string{"group-1"})

	_, err := service.Create(context.Background(), CreateInput{
		Name:            "Ortsgruppe Nord",
		MeetingSchedule: "every second tuesday",
	})
	serviceErr, ok := apperror.AsServiceError(err)
	if !ok || serviceErr.Kind() != apperror.KindInvalid {
		t.Fatalf("expected invalid kind, got %v", err)
	}
}

func TestCreateAcceptsCronSchedule(t *testing.T) {
	service, _ := newTestService(t, []string{"group-1"})

	group, err := service.Create(context.Background(), CreateInput{
		Name:            "Ortsgruppe Nord",
		MeetingSchedule: "0 19 * * 2",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if group.Status != StatusNew {
		t.Fatalf("expected status NEW, got %s", group.Status)
	}
}

func TestFindActiveRejectsNonActiveGroups(t *testing.T) {
	service, _ := newTestService(t, []string{"group-1"})
	group := mustCreateGroup(t, service, "Ortsgruppe Süd")

	_, err := service.FindActive(context.Background(), group.ID)
	serviceErr, ok := apperror.AsServiceError(err)
	if !ok || serviceErr.Kind() != apperror.KindNotFound {
		t.Fatalf("expected not found for NEW group, got %v", err)
	}

	if _, err := service.Activate(context.Background(), group.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found, err := service.FindActive(context.Background(), group.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found.ID != group.ID {
		t.Fatalf("unexpected group %s", found.ID)
	}
}

func TestAddMemberRejectsArchivedGroup(t *testing.T) {
	service, _ := newTestService(t, []string{"group-1"})
	ctx := context.Background()
	group := mustCreateGroup(t, service, "Ortsgruppe West")
	if _, err := service.Archive(ctx, group.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := service.AddMember(ctx, group.ID, "user-1")
	serviceErr, ok := apperror.AsServiceError(err)
	if !ok || serviceErr.Kind() != apperror.KindInvalid {
		t.Fatalf("expected invalid kind, got %v", err)
	}
	if serviceErr.Message() != msgArchivedMember {
		t.Fatalf("unexpected message %q", serviceErr.Message())
	}
}

func TestAddMemberRejectsDuplicates(t *testing.T) {
	service, _ := newTestService(t, []string{"group-1"})
	ctx := context.Background()
	group := mustCreateGroup(t, service, "Ortsgruppe Ost")
	if _, err := service.Activate(ctx, group.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := service.AddMember(ctx, group.ID, "user-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := service.AddMember(ctx, group.ID, "user-1")
	serviceErr, ok := apperror.AsServiceError(err)
	if !ok || serviceErr.Kind() != apperror.KindConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestRemoveMemberDeletesMembership(t *testing.T) {
	service, db := newTestService(t, []string{"group-1"})
	ctx := context.Background()
	group := mustCreateGroup(t, service, "Ortsgruppe Mitte")
	if _, err := service.Activate(ctx, group.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := service.AddMember(ctx, group.ID, "user-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := service.RemoveMember(ctx, group.ID, "user-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var count int64
	if err := db.Model(&Member{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count members: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected membership removed, got %d rows", count)
	}
}

func TestResponsiblePersonsRoundTrip(t *testing.T) {
	service, _ := newTestService(t, []string{"group-1", "person-1"})
	ctx := context.Background()
	group := mustCreateGroup(t, service, "Ortsgruppe Hafen")

	person, err := service.AddResponsiblePerson(ctx, group.ID, "Erika Musterfrau", "erika@example.org", "Sprecherin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	persons, err := service.ListResponsiblePersons(ctx, group.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(persons) != 1 || persons[0].ID != person.ID {
		t.Fatalf("unexpected persons %#v", persons)
	}

	if err := service.RemoveResponsiblePerson(ctx, group.ID, person.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	persons, err = service.ListResponsiblePersons(ctx, group.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(persons) != 0 {
		t.Fatalf("expected no persons, got %d", len(persons))
	}
}

func TestUpdateRejectsInvalidSchedule(t *testing.T) {
	service, _ := newTestService(t, []string{"group-1"})
	group := mustCreateGroup(t, service, "Ortsgruppe Park")

	badSchedule := "not-a-cron"
	_, err := service.Update(context.Background(), group.ID, UpdateInput{MeetingSchedule: &badSchedule})
	serviceErr, ok := apperror.AsServiceError(err)
	if !ok || serviceErr.Kind() != apperror.KindInvalid {
		t.Fatalf("expected invalid kind, got %v", err)
	}
}
