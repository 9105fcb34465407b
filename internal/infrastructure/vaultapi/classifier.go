package vaultapi

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/evidence-vault/internal/core/domain"
)

const maxClassificationTags = 5

// Classifier implements ports.DocumentClassifier with the vault LLM endpoint.
type Classifier struct {
	client *Client
}

func NewClassifier(client *Client) *Classifier {
	return &Classifier{client: client}
}

// Classify returns a transport error only when the service could not be reached
// or refused the request. Malformed answers degrade to an "other" classification.
func (c *Classifier) Classify(ctx context.Context, input domain.ClassificationInput) (domain.Classification, error) {
	content, err := c.client.chatJSON(ctx, classificationSystemPrompt, buildClassificationPrompt(input))
	if err != nil {
		return domain.Classification{}, err
	}
	return parseClassification(content), nil
}

func (c *Client) chatJSON(ctx context.Context, system, user string) (string, error) {
	request := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
		"response_format": map[string]string{"type": "json_object"},
		"temperature":     0,
	}
	var response struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := c.call(ctx, http.MethodPost, "/llm/v1/chat/completions", request, &response, "classify"); err != nil {
		return "", err
	}
	if len(response.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(response.Choices[0].Message.Content), nil
}

func parseClassification(raw string) domain.Classification {
	var payload map[string]any
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &payload); err != nil || payload == nil {
		return domain.UnparseableClassification()
	}

	summary := strings.TrimSpace(stringField(payload, "summary"))
	if summary == "" {
		summary = "No summary was provided by the classifier."
	}

	return domain.Classification{
		Category:       domain.ParseCategory(stringField(payload, "category")),
		Confidence:     confidenceField(payload["confidence"]),
		Tags:           tagsField(payload["tags"]),
		Summary:        summary,
		DateDetected:   dateField(payload, "dateDetected", "date_detected", "date"),
		RelevanceScore: relevanceField(payload, "relevanceScore", "relevance_score", "relevance"),
	}
}

func stringField(payload map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := payload[key].(string); ok {
			return v
		}
	}
	return ""
}

func confidenceField(raw any) float64 {
	var v float64
	switch typed := raw.(type) {
	case float64:
		v = typed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
		if err != nil {
			return 0.5
		}
		v = parsed
	default:
		return 0.5
	}
	if v > 1 && v <= 100 {
		v = v / 100
	}
	return math.Max(0, math.Min(1, v))
}

// relevanceField reads the 0-100 score. Missing or unparseable values become
// the default; out-of-range values are clamped.
func relevanceField(payload map[string]any, keys ...string) int {
	for _, key := range keys {
		raw, ok := payload[key]
		if !ok {
			continue
		}
		switch typed := raw.(type) {
		case float64:
			return domain.ClampRelevanceFloat(typed)
		case string:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
			if err != nil {
				return domain.DefaultRelevance
			}
			return domain.ClampRelevanceFloat(parsed)
		default:
			return domain.DefaultRelevance
		}
	}
	return domain.DefaultRelevance
}

func tagsField(raw any) []string {
	items, ok := raw.([]any)
	if !ok {
		return []string{}
	}
	tags := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			continue
		}
		tags = append(tags, domain.NormalizeClassificationTag(s))
	}
	tags = domain.NormalizeTags(tags)
	if len(tags) > maxClassificationTags {
		tags = tags[:maxClassificationTags]
	}
	return tags
}

func dateField(payload map[string]any, keys ...string) string {
	raw := strings.TrimSpace(stringField(payload, keys...))
	if raw == "" {
		return ""
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339, "2006/01/02", "01/02/2006"} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed.Format(time.DateOnly)
		}
	}
	return ""
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
