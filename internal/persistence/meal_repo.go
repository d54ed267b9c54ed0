package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/foodlens/framelink/internal/domain"
)

const mealColumns = `id, user_id, food_name, verdict, net_carbs, added_sugar, glycemic_index, glycemic_load, portion, context, location, confidence, source, logged_at, embedding`

type MealRepo struct {
	db *sql.DB
}

func NewMealRepo(db *sql.DB) *MealRepo {
	return &MealRepo{db: db}
}

func (r *MealRepo) Insert(ctx context.Context, m domain.MealEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO meals(`+mealColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.UserID, m.FoodName, string(m.Verdict),
		m.Figures.NetCarbs, m.Figures.AddedSugar, m.Figures.GlycemicIndex, m.Figures.GlycemicLoad,
		m.Portion, nullableString(m.Context), nullableString(m.Location), m.Confidence, nullableString(m.Source),
		toUnixMillis(m.LoggedAt), encodeEmbedding(m.Embedding))
	if err != nil {
		return fmt.Errorf("insert meal: %w", err)
	}
	return nil
}

// ListRecent returns up to limit meals of userID, newest first.
func (r *MealRepo) ListRecent(ctx context.Context, userID string, limit int) ([]domain.MealEntry, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+mealColumns+`
		FROM meals
		WHERE user_id = ?
		ORDER BY logged_at DESC, id
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent meals: %w", err)
	}
	return scanMeals(rows)
}

// ListSince returns meals of userID logged at or after since, newest first.
func (r *MealRepo) ListSince(ctx context.Context, userID string, since time.Time) ([]domain.MealEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+mealColumns+`
		FROM meals
		WHERE user_id = ? AND logged_at >= ?
		ORDER BY logged_at DESC, id
	`, userID, toUnixMillis(since))
	if err != nil {
		return nil, fmt.Errorf("list meals since: %w", err)
	}
	return scanMeals(rows)
}

func (r *MealRepo) ListAll(ctx context.Context, userID string) ([]domain.MealEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+mealColumns+`
		FROM meals
		WHERE user_id = ?
		ORDER BY logged_at DESC, id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list meals: %w", err)
	}
	return scanMeals(rows)
}

func scanMeals(rows *sql.Rows) ([]domain.MealEntry, error) {
	defer rows.Close()

	var out []domain.MealEntry
	for rows.Next() {
		var (
			m         domain.MealEntry
			verdict   string
			mealCtx   sql.NullString
			location  sql.NullString
			source    sql.NullString
			loggedMs  int64
			embedding []byte
		)
		if err := rows.Scan(&m.ID, &m.UserID, &m.FoodName, &verdict,
			&m.Figures.NetCarbs, &m.Figures.AddedSugar, &m.Figures.GlycemicIndex, &m.Figures.GlycemicLoad,
			&m.Portion, &mealCtx, &location, &m.Confidence, &source, &loggedMs, &embedding); err != nil {
			return nil, fmt.Errorf("scan meal: %w", err)
		}
		m.Verdict = domain.Verdict(verdict)
		m.Context = mealCtx.String
		m.Location = location.String
		m.Source = source.String
		m.LoggedAt = fromUnixMillis(loggedMs)
		vec, err := decodeEmbedding(embedding)
		if err != nil {
			return nil, fmt.Errorf("decode meal %s embedding: %w", m.ID, err)
		}
		m.Embedding = vec
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate meals: %w", err)
	}

	return out, nil
}
