package meallog

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/foodlens/framelink/internal/domain"
)

// ContextCount is how often a meal context occurred.
type ContextCount struct {
	Context string `json:"context"`
	Count   int    `json:"count"`
}

// Insights summarizes a user's recent meals.
type Insights struct {
	Meals               int                    `json:"meals"`
	VerdictDistribution map[domain.Verdict]int `json:"verdict_distribution"`
	AverageGlycemicLoad float64                `json:"average_glycemic_load"`
	CommonContexts      []ContextCount         `json:"common_contexts"`
	// ImprovementTrend is the week-over-week change of green meals in percent.
	ImprovementTrend float64  `json:"improvement_trend"`
	Tips             []string `json:"tips"`
}

// Insights analyses the user's meals of the last DefaultInsightsDays days.
func (l *Log) Insights(ctx context.Context, userID string) (Insights, error) {
	meals, err := l.History(ctx, userID, DefaultInsightsDays)
	if err != nil {
		return Insights{}, fmt.Errorf("meal insights: %w", err)
	}
	return summarize(meals, l.now()), nil
}

func summarize(meals []domain.MealEntry, now time.Time) Insights {
	out := Insights{
		Meals:               len(meals),
		VerdictDistribution: make(map[domain.Verdict]int),
	}
	if len(meals) == 0 {
		return out
	}

	contexts := make(map[string]int)
	var glTotal float64
	for _, m := range meals {
		out.VerdictDistribution[m.Verdict]++
		glTotal += m.Figures.GlycemicLoad
		if m.Context != "" {
			contexts[m.Context]++
		}
	}
	out.AverageGlycemicLoad = glTotal / float64(len(meals))
	out.CommonContexts = rankContexts(contexts)
	out.ImprovementTrend = improvementTrend(meals, now)
	out.Tips = tips(meals)

	return out
}

func rankContexts(counts map[string]int) []ContextCount {
	out := make([]ContextCount, 0, len(counts))
	for c, n := range counts {
		out = append(out, ContextCount{Context: c, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Context < out[j].Context
	})
	return out
}

// improvementTrend compares green meals of the last 7 days with the 7 days
// before. No green meals last week yields 0.
func improvementTrend(meals []domain.MealEntry, now time.Time) float64 {
	weekAgo := now.Add(-7 * 24 * time.Hour)
	twoWeeksAgo := now.Add(-14 * 24 * time.Hour)

	var thisWeek, lastWeek int
	for _, m := range meals {
		if m.Verdict != domain.VerdictGreen {
			continue
		}
		switch {
		case m.LoggedAt.After(weekAgo):
			thisWeek++
		case m.LoggedAt.After(twoWeeksAgo):
			lastWeek++
		}
	}
	if lastWeek == 0 {
		return 0
	}
	return float64(thisWeek-lastWeek) / float64(lastWeek) * 100
}

func tips(meals []domain.MealEntry) []string {
	redByContext := make(map[string]int)
	reds := 0
	for _, m := range meals {
		if m.Verdict != domain.VerdictRed {
			continue
		}
		reds++
		if m.Context != "" {
			redByContext[m.Context]++
		}
	}
	if reds == 0 {
		return nil
	}

	out := []string{"Try replacing high-GI foods with lower alternatives from your green choices."}
	if ranked := rankContexts(redByContext); len(ranked) > 0 {
		out = append(out, fmt.Sprintf("Consider planning healthier options for %s situations.", ranked[0].Context))
	}
	return out
}
