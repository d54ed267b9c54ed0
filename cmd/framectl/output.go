package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/foodlens/framelink/internal/app"
	"github.com/foodlens/framelink/internal/domain"
	"github.com/foodlens/framelink/internal/meallog"
	"github.com/foodlens/framelink/internal/transport"
)

type mealView struct {
	ID           string    `json:"id"`
	FoodName     string    `json:"food_name"`
	Verdict      string    `json:"verdict"`
	NetCarbs     float64   `json:"net_carbs"`
	GlycemicLoad float64   `json:"glycemic_load"`
	Portion      float64   `json:"portion"`
	Context      string    `json:"context,omitempty"`
	Location     string    `json:"location,omitempty"`
	LoggedAt     time.Time `json:"logged_at"`
}

type evaluationJSON struct {
	Food         string    `json:"food"`
	Confidence   float64   `json:"confidence"`
	Alternatives []string  `json:"alternatives,omitempty"`
	Verdict      string    `json:"verdict"`
	Icon         string    `json:"icon"`
	Color        string    `json:"color"`
	Overlay      []string  `json:"overlay"`
	Advice       string    `json:"advice,omitempty"`
	Meal         *mealView `json:"meal,omitempty"`
}

func mealViews(meals []domain.MealEntry) []mealView {
	out := make([]mealView, 0, len(meals))
	for _, m := range meals {
		out = append(out, toMealView(m))
	}
	return out
}

func toMealView(m domain.MealEntry) mealView {
	return mealView{
		ID:           m.ID,
		FoodName:     m.FoodName,
		Verdict:      string(m.Verdict),
		NetCarbs:     m.Figures.NetCarbs,
		GlycemicLoad: m.Figures.GlycemicLoad,
		Portion:      m.Portion,
		Context:      m.Context,
		Location:     m.Location,
		LoggedAt:     m.LoggedAt,
	}
}

func evaluationView(e app.Evaluation) evaluationJSON {
	view := evaluationJSON{
		Food:         e.Classification.FoodName,
		Confidence:   e.Classification.Confidence,
		Alternatives: e.Classification.Alternatives,
		Verdict:      string(e.Icon.Verdict),
		Icon:         e.Icon.Icon,
		Color:        e.Icon.Color,
		Overlay:      e.Overlay.Lines,
		Advice:       e.Nutrition.Advice,
	}
	if e.Meal != nil {
		meal := toMealView(*e.Meal)
		view.Meal = &meal
	}
	return view
}

func printEvaluation(out io.Writer, e app.Evaluation) {
	fmt.Fprintf(out, "%s: %s (%s)\n", e.Classification.FoodName, e.Icon.Text, e.Icon.Verdict)
	for _, line := range e.Overlay.Lines {
		fmt.Fprintf(out, "  | %s\n", line)
	}
	if e.Meal != nil {
		fmt.Fprintf(out, "logged meal %s\n", e.Meal.ID)
	}
}

func printMeals(out io.Writer, meals []domain.MealEntry) error {
	if len(meals) == 0 {
		_, err := fmt.Fprintln(out, "no meals logged")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tFOOD\tVERDICT\tGL\tCONTEXT")
	for _, m := range meals {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.1f\t%s\n",
			m.LoggedAt.Local().Format("2006-01-02 15:04"), m.FoodName, m.Verdict, m.Figures.GlycemicLoad, m.Context)
	}
	return w.Flush()
}

func printInsights(out io.Writer, in meallog.Insights) {
	fmt.Fprintf(out, "meals: %d\n", in.Meals)
	if in.Meals == 0 {
		return
	}
	fmt.Fprintf(out, "verdicts: green %d, yellow %d, red %d\n",
		in.VerdictDistribution[domain.VerdictGreen],
		in.VerdictDistribution[domain.VerdictYellow],
		in.VerdictDistribution[domain.VerdictRed])
	fmt.Fprintf(out, "average glycemic load: %.1f\n", in.AverageGlycemicLoad)
	fmt.Fprintf(out, "green trend vs last week: %+.0f%%\n", in.ImprovementTrend)
	if len(in.CommonContexts) > 0 {
		parts := make([]string, 0, len(in.CommonContexts))
		for _, c := range in.CommonContexts {
			parts = append(parts, fmt.Sprintf("%s (%d)", c.Context, c.Count))
		}
		fmt.Fprintf(out, "contexts: %s\n", strings.Join(parts, ", "))
	}
	for _, tip := range in.Tips {
		fmt.Fprintf(out, "tip: %s\n", tip)
	}
}

func printSimilar(out io.Writer, hits []domain.SimilarMeal) error {
	if len(hits) == 0 {
		_, err := fmt.Fprintln(out, "no similar meals")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCORE\tFOOD\tVERDICT\tCONTEXT\tWHEN")
	for _, h := range hits {
		fmt.Fprintf(w, "%.3f\t%s\t%s\t%s\t%s\n",
			h.Score, h.Meal.FoodName, h.Meal.Verdict, h.Meal.Context, h.Meal.LoggedAt.Local().Format("2006-01-02"))
	}
	return w.Flush()
}

func printScan(out io.Writer, devices []transport.ScanDevice, all bool) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tNAME\tRSSI\tGLASSES")
	shown := 0
	for _, d := range devices {
		if !all && !d.HasGlassesService {
			continue
		}
		shown++
		glasses := ""
		if d.HasGlassesService {
			glasses = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", d.Address, d.Name, d.RSSI, glasses)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if shown == 0 {
		_, err := fmt.Fprintln(out, "no glasses found (use -all to list every device)")
		return err
	}
	return nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeJSONLine(out io.Writer, v any) error {
	return json.NewEncoder(out).Encode(v)
}
