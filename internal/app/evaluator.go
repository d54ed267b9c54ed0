package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/foodlens/framelink/internal/device"
	"github.com/foodlens/framelink/internal/domain"
	"github.com/foodlens/framelink/internal/meallog"
)

var ErrUnexpectedResult = errors.New("unexpected command result")

// CommandSender is the slice of the dispatcher the evaluator uses.
type CommandSender interface {
	Send(ctx context.Context, cmd device.Command) device.Result
}

// MealRecorder is the slice of the meal log the evaluator uses.
type MealRecorder interface {
	Record(ctx context.Context, e meallog.Entry) (domain.MealEntry, error)
}

// EvaluateOptions controls one evaluation run.
type EvaluateOptions struct {
	LogMeal  bool
	Portion  float64
	Context  string
	Location string
}

// Evaluation is everything one capture produced.
type Evaluation struct {
	Capture        device.CaptureData
	Classification domain.Classification
	Nutrition      domain.NutritionVerdict
	Icon           device.VerdictIconData
	Overlay        device.DetailsOverlayData
	Meal           *domain.MealEntry
	Confirmation   *device.LogEntryData
}

// Evaluator runs capture, classification, nutrition lookup and the HUD presentation.
type Evaluator struct {
	logger     *slog.Logger
	sender     CommandSender
	classifier Classifier
	nutrition  NutritionSource
	meals      MealRecorder
}

func NewEvaluator(logger *slog.Logger, sender CommandSender, classifier Classifier, nutrition NutritionSource, meals MealRecorder) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{
		logger:     logger,
		sender:     sender,
		classifier: classifier,
		nutrition:  nutrition,
		meals:      meals,
	}
}

// Evaluate stops at the first failing step and returns what was done so far.
func (e *Evaluator) Evaluate(ctx context.Context, opts EvaluateOptions) (Evaluation, error) {
	var out Evaluation
	var err error

	res := e.sender.Send(ctx, device.NewCaptureCommand())
	if !res.OK() {
		return out, fmt.Errorf("capture: %w", res.Err)
	}
	if out.Capture, err = resultData[device.CaptureData](res); err != nil {
		return out, err
	}

	classification, err := e.classifier.Classify(ctx, out.Capture.Image)
	if err != nil {
		return out, fmt.Errorf("classify: %w", err)
	}
	out.Classification = classification

	verdict, err := e.nutrition.Evaluate(ctx, classification)
	if err != nil {
		return out, fmt.Errorf("nutrition lookup: %w", err)
	}
	out.Nutrition = verdict
	e.logger.Info("food evaluated", "food", classification.FoodName, "confidence", classification.Confidence, "verdict", verdict.Verdict)

	res = e.sender.Send(ctx, device.NewVerdictIconCommand(verdict.Verdict))
	if !res.OK() {
		return out, fmt.Errorf("show verdict: %w", res.Err)
	}
	if out.Icon, err = resultData[device.VerdictIconData](res); err != nil {
		return out, err
	}

	res = e.sender.Send(ctx, device.NewDetailsOverlayCommand(OverlayText(classification, verdict)))
	if !res.OK() {
		return out, fmt.Errorf("show details: %w", res.Err)
	}
	if out.Overlay, err = resultData[device.DetailsOverlayData](res); err != nil {
		return out, err
	}

	if !opts.LogMeal || e.meals == nil {
		return out, nil
	}

	meal, err := e.meals.Record(ctx, meallog.Entry{
		FoodName:   classification.FoodName,
		Verdict:    verdict.Verdict,
		Figures:    verdict.Figures,
		Portion:    opts.Portion,
		Context:    opts.Context,
		Location:   opts.Location,
		Confidence: classification.Confidence,
		Source:     string(classification.Source),
	})
	if err != nil {
		return out, fmt.Errorf("log meal: %w", err)
	}
	out.Meal = &meal

	res = e.sender.Send(ctx, device.NewLogEntryCommand(meal.FoodName))
	if !res.OK() {
		return out, fmt.Errorf("confirm log entry: %w", res.Err)
	}
	confirmation, err := resultData[device.LogEntryData](res)
	if err != nil {
		return out, err
	}
	out.Confirmation = &confirmation

	return out, nil
}

// resultData extracts the typed payload of a successful command. Handlers
// registered with RegisterHandler may return anything.
func resultData[T any](res device.Result) (T, error) {
	data, ok := res.Data.(T)
	if !ok {
		return data, fmt.Errorf("%w: %s returned %T", ErrUnexpectedResult, res.Command.Type, res.Data)
	}
	return data, nil
}

// OverlayText is the details text shown under the verdict icon.
func OverlayText(c domain.Classification, v domain.NutritionVerdict) string {
	f := v.Figures
	parts := []string{
		fmt.Sprintf("%s (%d%%)", c.FoodName, int(c.Confidence*100+0.5)),
		fmt.Sprintf("Net carbs %sg, added sugar %sg, GI %s, GL %s.", trimFloat(f.NetCarbs), trimFloat(f.AddedSugar), trimFloat(f.GlycemicIndex), trimFloat(f.GlycemicLoad)),
	}
	if advice := strings.TrimSpace(v.Advice); advice != "" {
		parts = append(parts, advice)
	}
	return strings.Join(parts, " ")
}

func trimFloat(v float64) string {
	s := fmt.Sprintf("%.1f", v)
	return strings.TrimSuffix(s, ".0")
}
