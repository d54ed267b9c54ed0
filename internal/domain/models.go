package domain

import "time"

// ClassificationSource names the classifier that produced a label.
type ClassificationSource string

const (
	ClassificationSourceOnDevice ClassificationSource = "tflite"
	ClassificationSourceCloud    ClassificationSource = "cloud_vision"
)

// Classification is a finished food-classification result supplied by the classifier collaborator.
type Classification struct {
	FoodName     string
	Confidence   float64
	Alternatives []string
	Source       ClassificationSource
}

// Nutrients holds per-portion nutrition figures.
type Nutrients struct {
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Fat      float64 `json:"fat"`
	Fiber    float64 `json:"fiber"`
	Sodium   float64 `json:"sodium"`
}

// GlycemicFigures are the figures a traffic-light verdict is derived from.
type GlycemicFigures struct {
	NetCarbs      float64 `json:"net_carbs"`
	AddedSugar    float64 `json:"added_sugar"`
	GlycemicIndex float64 `json:"glycemic_index"`
	GlycemicLoad  float64 `json:"glycemic_load"`
}

// NutritionVerdict is the nutrition collaborator's finished output for one food.
type NutritionVerdict struct {
	FoodName  string
	Verdict   Verdict
	Figures   GlycemicFigures
	Nutrients Nutrients
	Advice    string
	Source    string
}

// MealEntry is one logged meal, as stored by the meal log.
type MealEntry struct {
	ID         string
	UserID     string
	FoodName   string
	Verdict    Verdict
	Figures    GlycemicFigures
	Portion    float64
	Context    string
	Location   string
	Confidence float64
	Source     string
	LoggedAt   time.Time
	Embedding  []float32
}

// SimilarMeal is a similarity search hit.
type SimilarMeal struct {
	Meal  MealEntry
	Score float64
}

// CommandRecord is a persisted outcome of one device command.
type CommandRecord struct {
	ID         int64
	Type       string
	Success    bool
	Reason     string
	DurationMS int64
	At         time.Time
}
