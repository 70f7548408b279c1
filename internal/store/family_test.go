package store

import (
	"database/sql"
	"testing"
	"time"

	"github.com/dje115/choreblimey-sub001/internal/database"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestFamilyCreateSeedsDefaults(t *testing.T) {
	db := testDB(t)
	families := NewFamilyStore(db)

	family, err := families.Create("The Smiths")
	if err != nil {
		t.Fatalf("create family: %v", err)
	}
	if family.Name != "The Smiths" {
		t.Errorf("name = %q", family.Name)
	}

	settings, err := families.GetSettings(family.ID)
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if settings == nil {
		t.Fatal("expected default settings row")
	}
	if settings.ConversionRatePence <= 0 {
		t.Errorf("default conversion rate = %d, want positive", settings.ConversionRatePence)
	}

	var streakRows int
	if err := db.QueryRow(`SELECT COUNT(*) FROM family_streaks WHERE family_id = ?`, family.ID).Scan(&streakRows); err != nil {
		t.Fatalf("count streak rows: %v", err)
	}
	if streakRows != 1 {
		t.Errorf("family streak rows = %d, want 1", streakRows)
	}
}

func TestFamilyGetByIDUnknown(t *testing.T) {
	families := NewFamilyStore(testDB(t))

	family, err := families.GetByID(999)
	if err != nil {
		t.Fatalf("get family: %v", err)
	}
	if family != nil {
		t.Errorf("expected nil for unknown family, got %+v", family)
	}
}

func TestFamilyListIDs(t *testing.T) {
	families := NewFamilyStore(testDB(t))

	a, _ := families.Create("A")
	b, _ := families.Create("B")

	ids, err := families.ListIDs()
	if err != nil {
		t.Fatalf("list ids: %v", err)
	}
	if len(ids) != 2 || ids[0] != a.ID || ids[1] != b.ID {
		t.Errorf("ids = %v, want [%d %d]", ids, a.ID, b.ID)
	}
}

func TestUpdateSettingsRoundTrip(t *testing.T) {
	families := NewFamilyStore(testDB(t))

	family, err := families.Create("Test")
	if err != nil {
		t.Fatalf("create family: %v", err)
	}

	settings, err := families.GetSettings(family.ID)
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}

	start := time.Date(2026, 7, 20, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)

	settings.ConversionRatePence = 10
	settings.StreakProtectionDays = 2
	settings.HolidayEnabled = true
	settings.HolidayStart = &start
	settings.HolidayEnd = &end
	settings.PenaltyEnabled = true
	settings.FloorPence = 50

	updated, err := families.UpdateSettings(*settings)
	if err != nil {
		t.Fatalf("update settings: %v", err)
	}
	if updated.ConversionRatePence != 10 {
		t.Errorf("conversion rate = %d", updated.ConversionRatePence)
	}
	if !updated.HolidayEnabled || updated.HolidayStart == nil || !updated.HolidayStart.Equal(start) {
		t.Errorf("holiday window not persisted: %+v", updated)
	}
	if updated.FloorPence != 50 {
		t.Errorf("floor = %d", updated.FloorPence)
	}
}
