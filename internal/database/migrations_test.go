package database

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/parteiportal/backend/internal/newsletter"
)

func newMigrationTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:database_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	if err := db.AutoMigrate(&newsletter.Item{}, &migrationRecord{}); err != nil {
		t.Fatalf("migrate schema: %v", err)
	}
	return db
}

func TestBackfillNewsletterVersionsSetsMissingVersions(t *testing.T) {
	db := newMigrationTestDB(t)

	imported := newsletter.Item{
		ID:       "nl-imported",
		Subject:  "Altbestand",
		BodyHTML: "<p>Archiv</p>",
		Status:   newsletter.StatusSent,
		Version:  1,
	}
	if err := db.Create(&imported).Error; err != nil {
		t.Fatalf("seed newsletter: %v", err)
	}
	// Imported rows predate the version column.
	if err := db.Model(&newsletter.Item{}).Where("id = ?", imported.ID).Update("version", 0).Error; err != nil {
		t.Fatalf("clear version: %v", err)
	}

	current := newsletter.Item{
		ID:       "nl-current",
		Subject:  "Aktuell",
		BodyHTML: "<p>Entwurf</p>",
		Status:   newsletter.StatusDraft,
		Version:  4,
	}
	if err := db.Create(&current).Error; err != nil {
		t.Fatalf("seed newsletter: %v", err)
	}

	if err := applyMigrations(db, nil); err != nil {
		t.Fatalf("applyMigrations returned error: %v", err)
	}

	var backfilled newsletter.Item
	if err := db.Take(&backfilled, "id = ?", imported.ID).Error; err != nil {
		t.Fatalf("load imported newsletter: %v", err)
	}
	if backfilled.Version != 1 {
		t.Fatalf("expected version 1 after backfill, got %d", backfilled.Version)
	}

	var untouched newsletter.Item
	if err := db.Take(&untouched, "id = ?", current.ID).Error; err != nil {
		t.Fatalf("load current newsletter: %v", err)
	}
	if untouched.Version != 4 {
		t.Fatalf("expected version 4 to survive, got %d", untouched.Version)
	}
}

func TestApplyMigrationsRecordsAndSkipsAppliedMigrations(t *testing.T) {
	db := newMigrationTestDB(t)

	if err := applyMigrations(db, nil); err != nil {
		t.Fatalf("applyMigrations returned error: %v", err)
	}

	var record migrationRecord
	if err := db.Take(&record, "name = ?", migrationBackfillNewsletterVersions).Error; err != nil {
		t.Fatalf("expected migration record: %v", err)
	}
	if record.AppliedAtSeconds == 0 {
		t.Fatalf("expected applied timestamp to be recorded")
	}

	appliedAt := record.AppliedAtSeconds
	if err := applyMigrations(db, nil); err != nil {
		t.Fatalf("second applyMigrations returned error: %v", err)
	}

	var count int64
	if err := db.Model(&migrationRecord{}).Count(&count).Error; err != nil {
		t.Fatalf("count migration records: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one migration record, got %d", count)
	}

	if err := db.Take(&record, "name = ?", migrationBackfillNewsletterVersions).Error; err != nil {
		t.Fatalf("reload migration record: %v", err)
	}
	if record.AppliedAtSeconds != appliedAt {
		t.Fatalf("expected applied timestamp to be stable across runs")
	}
}

func TestOpenSQLiteMigratesSchema(t *testing.T) {
	dsn := fmt.Sprintf("file:database_open_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := OpenSQLite(dsn, nil)
	if err != nil {
		t.Fatalf("OpenSQLite returned error: %v", err)
	}

	for _, table := range []string{"users", "groups", "newsletter_items", "db_migrations"} {
		if !db.Migrator().HasTable(table) {
			t.Fatalf("expected table %q after OpenSQLite", table)
		}
	}
}
