package persistence

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/foodlens/framelink/internal/domain"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "meals.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMealRepoInsertAndList_RoundTripsEmbedding(t *testing.T) {
	ctx := context.Background()
	repo := NewMealRepo(openTestDB(t))
	at := time.Date(2026, 3, 14, 12, 30, 0, 0, time.UTC)

	meal := domain.MealEntry{
		ID:         "meal-1",
		UserID:     "u1",
		FoodName:   "Oatmeal",
		Verdict:    domain.VerdictGreen,
		Figures:    domain.GlycemicFigures{NetCarbs: 27, GlycemicIndex: 55, GlycemicLoad: 14.9},
		Portion:    1.5,
		Context:    "breakfast",
		Confidence: 0.91,
		Source:     "tflite",
		LoggedAt:   at,
		Embedding:  []float32{0.5, -0.25, 0.125},
	}
	if err := repo.Insert(ctx, meal); err != nil {
		t.Fatalf("insert meal: %v", err)
	}

	meals, err := repo.ListAll(ctx, "u1")
	if err != nil {
		t.Fatalf("list meals: %v", err)
	}
	if len(meals) != 1 {
		t.Fatalf("expected one meal, got %d", len(meals))
	}
	got := meals[0]
	if got.FoodName != "Oatmeal" || got.Verdict != domain.VerdictGreen || got.Context != "breakfast" || got.Location != "" {
		t.Fatalf("unexpected meal %+v", got)
	}
	if got.Figures.GlycemicLoad != 14.9 || got.Portion != 1.5 {
		t.Fatalf("figures did not roundtrip: %+v", got.Figures)
	}
	if !got.LoggedAt.Equal(at) {
		t.Fatalf("logged at = %s, want %s", got.LoggedAt, at)
	}
	if len(got.Embedding) != 3 || got.Embedding[1] != -0.25 {
		t.Fatalf("embedding did not roundtrip: %v", got.Embedding)
	}

	if other, err := repo.ListAll(ctx, "u2"); err != nil || len(other) != 0 {
		t.Fatalf("expected no meals for another user, got %d (err %v)", len(other), err)
	}
}

func TestMealRepoListRecentAndSince(t *testing.T) {
	ctx := context.Background()
	repo := NewMealRepo(openTestDB(t))
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	for i, name := range []string{"Toast", "Salad", "Pasta", "Apple"} {
		if err := repo.Insert(ctx, domain.MealEntry{
			ID:       name,
			UserID:   "u1",
			FoodName: name,
			Verdict:  domain.VerdictYellow,
			LoggedAt: base.Add(time.Duration(i) * 24 * time.Hour),
		}); err != nil {
			t.Fatalf("insert %s: %v", name, err)
		}
	}

	recent, err := repo.ListRecent(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(recent) != 2 || recent[0].FoodName != "Apple" || recent[1].FoodName != "Pasta" {
		t.Fatalf("unexpected recent meals %+v", recent)
	}

	since, err := repo.ListSince(ctx, "u1", base.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("list since: %v", err)
	}
	if len(since) != 3 {
		t.Fatalf("expected 3 meals since day 2, got %d", len(since))
	}

	if none, err := repo.ListRecent(ctx, "u1", 0); err != nil || none != nil {
		t.Fatalf("zero limit should return nothing, got %v (err %v)", none, err)
	}
}

func TestCommandLogRepo(t *testing.T) {
	ctx := context.Background()
	repo := NewCommandLogRepo(openTestDB(t))
	now := time.Now().UTC()

	if _, err := repo.Insert(ctx, domain.CommandRecord{Type: "capture", Success: true, DurationMS: 1000, At: now}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	id, err := repo.Insert(ctx, domain.CommandRecord{Type: "verdict_icon", Reason: "not connected", At: now.Add(time.Second)})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if id <= 0 {
		t.Fatalf("expected positive id, got %d", id)
	}

	records, err := repo.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Type != "verdict_icon" || records[0].Success || records[0].Reason != "not connected" {
		t.Fatalf("unexpected newest record %+v", records[0])
	}
	if !records[1].Success || records[1].DurationMS != 1000 {
		t.Fatalf("unexpected oldest record %+v", records[1])
	}
}

func TestOpen_MigratesV1DatabaseToLatest(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "meals.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	stmts := append(append([]string(nil), migrations[0]...),
		`INSERT INTO meals(id, user_id, food_name, verdict, logged_at) VALUES ('m1', 'u1', 'Soup', 'green', 1000);`,
		`PRAGMA user_version = 1;`,
	)
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			t.Fatalf("seed v1 schema: %v", err)
		}
	}
	_ = db.Close()

	migrated, err := Open(ctx, dbPath)
	if err != nil {
		t.Fatalf("open migrated db: %v", err)
	}
	defer func() { _ = migrated.Close() }()

	var version int
	if err := migrated.QueryRowContext(ctx, `PRAGMA user_version;`).Scan(&version); err != nil {
		t.Fatalf("read user_version: %v", err)
	}
	if version != SchemaVersion() {
		t.Fatalf("expected schema version %d, got %d", SchemaVersion(), version)
	}

	var table string
	if err := migrated.QueryRowContext(ctx, `
		SELECT name
		FROM sqlite_master
		WHERE type = 'table' AND name = 'command_log'
	`).Scan(&table); err != nil {
		t.Fatalf("expected command_log table after migration: %v", err)
	}

	meals, err := NewMealRepo(migrated).ListAll(ctx, "u1")
	if err != nil {
		t.Fatalf("list meals: %v", err)
	}
	if len(meals) != 1 || meals[0].FoodName != "Soup" {
		t.Fatalf("expected seeded meal to survive migration, got %+v", meals)
	}
}

func TestOpen_RejectsNewerSchema(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "meals.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if _, err := db.ExecContext(ctx, `PRAGMA user_version = 99;`); err != nil {
		t.Fatalf("set version: %v", err)
	}
	_ = db.Close()

	if _, err := Open(ctx, dbPath); err == nil {
		t.Fatalf("expected error for newer schema")
	}
}

func TestClearDatabase(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	meals := NewMealRepo(db)
	if err := meals.Insert(ctx, domain.MealEntry{ID: "x", UserID: "u1", FoodName: "Rice", Verdict: domain.VerdictRed, LoggedAt: time.Now()}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := NewCommandLogRepo(db).Insert(ctx, domain.CommandRecord{Type: "capture", At: time.Now()}); err != nil {
		t.Fatalf("insert command: %v", err)
	}

	if err := ClearDatabase(ctx, db); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if got, _ := meals.ListAll(ctx, "u1"); len(got) != 0 {
		t.Fatalf("expected no meals after clear, got %d", len(got))
	}
	if got, _ := NewCommandLogRepo(db).ListRecent(ctx, 10); len(got) != 0 {
		t.Fatalf("expected no command records after clear, got %d", len(got))
	}
	if err := ClearDatabase(ctx, nil); err == nil {
		t.Fatalf("expected error for nil db")
	}
}

func TestDecodeEmbeddingRejectsTruncatedBlob(t *testing.T) {
	if _, err := decodeEmbedding([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected error for truncated blob")
	}
	vec, err := decodeEmbedding(encodeEmbedding([]float32{1, 2}))
	if err != nil || len(vec) != 2 || vec[1] != 2 {
		t.Fatalf("roundtrip = %v, %v", vec, err)
	}
}
