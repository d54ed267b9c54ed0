package domain

import (
	"context"
	"time"
)

type MealRepository interface {
	Insert(ctx context.Context, m MealEntry) error
	ListRecent(ctx context.Context, userID string, limit int) ([]MealEntry, error)
	ListSince(ctx context.Context, userID string, since time.Time) ([]MealEntry, error)
	ListAll(ctx context.Context, userID string) ([]MealEntry, error)
}

type CommandLogRepository interface {
	Insert(ctx context.Context, r CommandRecord) (int64, error)
	ListRecent(ctx context.Context, limit int) ([]CommandRecord, error)
}
