package meallog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/foodlens/framelink/internal/bus"
	"github.com/foodlens/framelink/internal/connectors"
	"github.com/foodlens/framelink/internal/domain"
	"github.com/foodlens/framelink/internal/metrics"
)

const (
	DefaultHistoryDays  = 7
	DefaultInsightsDays = 30
	DefaultSimilarLimit = 5
)

var ErrEmptyFoodName = errors.New("food name is required")

// Entry is the caller-supplied part of a meal; the log fills id, timestamp and embedding.
type Entry struct {
	UserID     string
	FoodName   string
	Verdict    domain.Verdict
	Figures    domain.GlycemicFigures
	Portion    float64
	Context    string
	Location   string
	Confidence float64
	Source     string
}

type Options struct {
	Logger  *slog.Logger
	Bus     bus.MessageBus
	Metrics *metrics.Metrics
	// Queue makes inserts asynchronous. Nil writes inline.
	Queue  domain.WriteQueue
	UserID string
	Now    func() time.Time
}

// Log stores meal entries with embeddings and answers similarity and trend queries.
type Log struct {
	logger  *slog.Logger
	repo    domain.MealRepository
	bus     bus.MessageBus
	metrics *metrics.Metrics
	queue   domain.WriteQueue
	userID  string
	now     func() time.Time
}

func New(repo domain.MealRepository, opts Options) *Log {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	userID := strings.TrimSpace(opts.UserID)
	if userID == "" {
		userID = "local"
	}

	return &Log{
		logger:  logger,
		repo:    repo,
		bus:     opts.Bus,
		metrics: opts.Metrics,
		queue:   opts.Queue,
		userID:  userID,
		now:     now,
	}
}

func (l *Log) user(userID string) string {
	if strings.TrimSpace(userID) == "" {
		return l.userID
	}
	return userID
}

// Record logs one meal and returns the stored entry.
func (l *Log) Record(ctx context.Context, e Entry) (domain.MealEntry, error) {
	food := strings.TrimSpace(e.FoodName)
	if food == "" {
		return domain.MealEntry{}, ErrEmptyFoodName
	}
	verdict := e.Verdict
	if !verdict.Valid() {
		verdict = domain.VerdictYellow
	}
	portion := e.Portion
	if portion <= 0 {
		portion = 1
	}

	meal := domain.MealEntry{
		ID:         uuid.NewString(),
		UserID:     l.user(e.UserID),
		FoodName:   food,
		Verdict:    verdict,
		Figures:    e.Figures,
		Portion:    portion,
		Context:    strings.TrimSpace(e.Context),
		Location:   strings.TrimSpace(e.Location),
		Confidence: e.Confidence,
		Source:     e.Source,
		LoggedAt:   l.now().UTC(),
	}
	meal.Embedding = Embed(MealText(meal.FoodName, meal.Context, meal.Verdict))

	if l.queue != nil {
		l.queue.Enqueue("insert_meal", func(writeCtx context.Context) error {
			return l.repo.Insert(writeCtx, meal)
		})
	} else if err := l.repo.Insert(ctx, meal); err != nil {
		return domain.MealEntry{}, fmt.Errorf("log meal: %w", err)
	}

	l.logger.Info("meal logged", "id", meal.ID, "food", meal.FoodName, "verdict", meal.Verdict)
	l.metrics.MealLogged(string(meal.Verdict))
	if l.bus != nil {
		l.bus.Publish(connectors.TopicMealLogged, connectors.MealLoggedEvent{
			ID:           meal.ID,
			UserID:       meal.UserID,
			FoodName:     meal.FoodName,
			Verdict:      string(meal.Verdict),
			GlycemicLoad: meal.Figures.GlycemicLoad,
			NetCarbs:     meal.Figures.NetCarbs,
			Context:      meal.Context,
			LoggedAt:     meal.LoggedAt,
		})
	}

	return meal, nil
}

// FindSimilar ranks the user's meals by cosine similarity to the query meal.
func (l *Log) FindSimilar(ctx context.Context, userID string, query Entry, limit int) ([]domain.SimilarMeal, error) {
	if limit <= 0 {
		limit = DefaultSimilarLimit
	}
	meals, err := l.repo.ListAll(ctx, l.user(userID))
	if err != nil {
		return nil, fmt.Errorf("find similar meals: %w", err)
	}

	qvec := Embed(MealText(query.FoodName, query.Context, query.Verdict))
	hits := make([]domain.SimilarMeal, 0, len(meals))
	for _, m := range meals {
		vec := m.Embedding
		if len(vec) != EmbeddingDim {
			vec = Embed(MealText(m.FoodName, m.Context, m.Verdict))
		}
		hits = append(hits, domain.SimilarMeal{Meal: m, Score: Cosine(qvec, vec)})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}

	return hits, nil
}

// History returns the meals logged in the last days days, newest first.
func (l *Log) History(ctx context.Context, userID string, days int) ([]domain.MealEntry, error) {
	if days <= 0 {
		days = DefaultHistoryDays
	}
	since := l.now().Add(-time.Duration(days) * 24 * time.Hour)
	meals, err := l.repo.ListSince(ctx, l.user(userID), since)
	if err != nil {
		return nil, fmt.Errorf("meal history: %w", err)
	}
	return meals, nil
}
