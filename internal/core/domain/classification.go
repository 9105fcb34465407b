package domain

import (
	"math"
	"strings"
)

const (
	DefaultRelevance = 50
	MinRelevance     = 0
	MaxRelevance     = 100
)

// Classification is the normalized output of the classification service.
type Classification struct {
	Category       Category `json:"category"`
	Confidence     float64  `json:"confidence"`
	Tags           []string `json:"tags"`
	Summary        string   `json:"summary"`
	DateDetected   string   `json:"dateDetected,omitempty"`
	RelevanceScore int      `json:"relevanceScore"`
}

// ClassificationInput is what the classifier sees: extracted text, or the
// filename alone when no text could be obtained.
type ClassificationInput struct {
	Text        string
	Filename    string
	ContentType string
}

func ClampRelevance(score int) int {
	if score < MinRelevance {
		return MinRelevance
	}
	if score > MaxRelevance {
		return MaxRelevance
	}
	return score
}

// ClampRelevanceFloat rounds a raw score into range before converting, so
// huge values cannot overflow int. NaN becomes the default.
func ClampRelevanceFloat(score float64) int {
	if math.IsNaN(score) {
		return DefaultRelevance
	}
	return int(math.Round(math.Max(MinRelevance, math.Min(MaxRelevance, score))))
}

// NormalizeClassificationTag turns "smoking_gun" or "smoking-gun" into "smoking gun".
func NormalizeClassificationTag(tag string) string {
	tag = strings.NewReplacer("_", " ", "-", " ").Replace(tag)
	return strings.Join(strings.Fields(tag), " ")
}

// PhotoClassification is assigned to images whose OCR produced no meaningful text.
func PhotoClassification() Classification {
	return Classification{
		Category:       CategoryPhoto,
		Confidence:     0.9,
		Tags:           []string{"photograph", "image", "visual evidence"},
		Summary:        "Photograph or image with no readable text detected.",
		RelevanceScore: DefaultRelevance,
	}
}

// UnparseableClassification is used when the classifier answered with something
// that could not be read as a classification.
func UnparseableClassification() Classification {
	return Classification{
		Category:       CategoryOther,
		Confidence:     0,
		Tags:           []string{},
		Summary:        "Automatic classification failed: the classification service returned an unreadable response.",
		RelevanceScore: DefaultRelevance,
	}
}
