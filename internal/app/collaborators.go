package app

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"slices"
	"strings"

	"github.com/foodlens/framelink/internal/domain"
)

var ErrUnknownFood = errors.New("no nutrition data for food")

// Classifier labels a captured image.
type Classifier interface {
	Classify(ctx context.Context, image []byte) (domain.Classification, error)
}

// NutritionSource turns a classification into a verdict with figures and advice.
type NutritionSource interface {
	Evaluate(ctx context.Context, c domain.Classification) (domain.NutritionVerdict, error)
}

// FixedClassifier always returns Result. Useful when the food is named by the user.
type FixedClassifier struct {
	Result domain.Classification
}

func (c FixedClassifier) Classify(context.Context, []byte) (domain.Classification, error) {
	if strings.TrimSpace(c.Result.FoodName) == "" {
		return domain.Classification{}, errors.New("fixed classifier has no food name")
	}
	return c.Result, nil
}

// CatalogClassifier picks a catalog label from a checksum of the image bytes.
type CatalogClassifier struct {
	Foods  []domain.Classification
	Source domain.ClassificationSource
}

// DefaultCatalogClassifier labels images with the on-device catalog.
func DefaultCatalogClassifier() CatalogClassifier {
	return CatalogClassifier{
		Source: domain.ClassificationSourceOnDevice,
		Foods: []domain.Classification{
			{FoodName: "Apple", Confidence: 0.94},
			{FoodName: "Banana", Confidence: 0.91},
			{FoodName: "Chocolate Chip Cookie", Confidence: 0.89},
			{FoodName: "Whole Wheat Bread", Confidence: 0.85},
			{FoodName: "White Rice", Confidence: 0.87},
		},
	}
}

func (c CatalogClassifier) Classify(ctx context.Context, image []byte) (domain.Classification, error) {
	if err := ctx.Err(); err != nil {
		return domain.Classification{}, err
	}
	if len(c.Foods) == 0 {
		return domain.Classification{}, errors.New("classifier catalog is empty")
	}
	if len(image) == 0 {
		return domain.Classification{}, errors.New("empty image")
	}

	h := fnv.New32a()
	_, _ = h.Write(image)
	idx := int(h.Sum32() % uint32(len(c.Foods)))

	out := c.Foods[idx]
	out.Source = c.Source
	out.Alternatives = slices.Clone(out.Alternatives)
	for i, f := range c.Foods {
		if i != idx && len(out.Alternatives) < 2 {
			out.Alternatives = append(out.Alternatives, f.FoodName)
		}
	}
	return out, nil
}

// FallbackClassifier asks Secondary when Primary fails or is not confident enough.
type FallbackClassifier struct {
	Primary       Classifier
	Secondary     Classifier
	MinConfidence float64
}

func (c FallbackClassifier) Classify(ctx context.Context, image []byte) (domain.Classification, error) {
	primary, err := c.Primary.Classify(ctx, image)
	if err == nil && primary.Confidence > c.MinConfidence {
		return primary, nil
	}
	if c.Secondary == nil {
		if err != nil {
			return domain.Classification{}, err
		}
		return primary, nil
	}

	secondary, secErr := c.Secondary.Classify(ctx, image)
	if secErr != nil {
		if err == nil {
			return primary, nil
		}
		return domain.Classification{}, fmt.Errorf("classify food: %w", errors.Join(err, secErr))
	}
	return secondary, nil
}

// CatalogNutrition serves precomputed verdicts for known foods.
type CatalogNutrition struct {
	Name  string
	Foods map[string]domain.NutritionVerdict
}

// DefaultNutritionCatalog carries the reference nutrition data.
func DefaultNutritionCatalog() CatalogNutrition {
	foods := []domain.NutritionVerdict{
		{
			FoodName:  "Apple",
			Verdict:   domain.VerdictYellow,
			Figures:   domain.GlycemicFigures{NetCarbs: 19, AddedSugar: 0, GlycemicIndex: 36, GlycemicLoad: 6},
			Nutrients: domain.Nutrients{Calories: 95, Protein: 0.5, Fat: 0.3, Fiber: 4, Sodium: 2},
			Advice:    "Pair with fiber-rich foods to slow absorption.",
		},
		{
			FoodName:  "Banana",
			Verdict:   domain.VerdictYellow,
			Figures:   domain.GlycemicFigures{NetCarbs: 24, AddedSugar: 0, GlycemicIndex: 51, GlycemicLoad: 12},
			Nutrients: domain.Nutrients{Calories: 105, Protein: 1.3, Fat: 0.4, Fiber: 3.1, Sodium: 1},
			Advice:    "Try half a banana with almond butter.",
		},
		{
			FoodName:  "Chocolate Chip Cookie",
			Verdict:   domain.VerdictYellow,
			Figures:   domain.GlycemicFigures{NetCarbs: 22, AddedSugar: 12, GlycemicIndex: 55, GlycemicLoad: 12},
			Nutrients: domain.Nutrients{Calories: 150, Protein: 2, Fat: 7, Fiber: 1, Sodium: 110},
			Advice:    "Try a handful of berries with a few nuts.",
		},
		{
			FoodName:  "Whole Wheat Bread",
			Verdict:   domain.VerdictYellow,
			Figures:   domain.GlycemicFigures{NetCarbs: 12, AddedSugar: 1.4, GlycemicIndex: 51, GlycemicLoad: 6},
			Nutrients: domain.Nutrients{Calories: 80, Protein: 4, Fat: 1, Fiber: 2, Sodium: 140},
			Advice:    "Moderate choice. Consider a smaller portion.",
		},
		{
			FoodName:  "White Rice",
			Verdict:   domain.VerdictRed,
			Figures:   domain.GlycemicFigures{NetCarbs: 45, AddedSugar: 0, GlycemicIndex: 73, GlycemicLoad: 29},
			Nutrients: domain.Nutrients{Calories: 205, Protein: 4, Fat: 0.4, Fiber: 0.6, Sodium: 1},
			Advice:    "Consider cauliflower rice or quinoa instead.",
		},
		{
			FoodName:  "Mixed Salad",
			Verdict:   domain.VerdictGreen,
			Figures:   domain.GlycemicFigures{NetCarbs: 4, AddedSugar: 0, GlycemicIndex: 15, GlycemicLoad: 1},
			Nutrients: domain.Nutrients{Calories: 35, Protein: 2, Fat: 0.5, Fiber: 3, Sodium: 40},
			Advice:    "Great choice! Try pairing with protein for sustained energy.",
		},
		{
			FoodName:  "Mixed Nuts",
			Verdict:   domain.VerdictGreen,
			Figures:   domain.GlycemicFigures{NetCarbs: 4, AddedSugar: 0, GlycemicIndex: 15, GlycemicLoad: 1},
			Nutrients: domain.Nutrients{Calories: 170, Protein: 5, Fat: 15, Fiber: 3, Sodium: 90},
			Advice:    "Excellent! Continue making choices like this.",
		},
	}

	byName := make(map[string]domain.NutritionVerdict, len(foods))
	for _, f := range foods {
		f.Source = "catalog"
		byName[foodKey(f.FoodName)] = f
	}
	return CatalogNutrition{Name: "catalog", Foods: byName}
}

func (n CatalogNutrition) Evaluate(ctx context.Context, c domain.Classification) (domain.NutritionVerdict, error) {
	if err := ctx.Err(); err != nil {
		return domain.NutritionVerdict{}, err
	}
	v, ok := n.Foods[foodKey(c.FoodName)]
	if !ok {
		return domain.NutritionVerdict{}, fmt.Errorf("%w: %q", ErrUnknownFood, c.FoodName)
	}
	return v, nil
}

// NutritionChain tries each source in order and returns the first answer.
type NutritionChain []NutritionSource

func (ch NutritionChain) Evaluate(ctx context.Context, c domain.Classification) (domain.NutritionVerdict, error) {
	var errs []error
	for _, src := range ch {
		v, err := src.Evaluate(ctx, c)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil {
			return domain.NutritionVerdict{}, ctx.Err()
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return domain.NutritionVerdict{}, errors.New("no nutrition sources configured")
	}
	return domain.NutritionVerdict{}, fmt.Errorf("all nutrition sources failed: %w", errors.Join(errs...))
}

func foodKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
