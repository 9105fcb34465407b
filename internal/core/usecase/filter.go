package usecase

import (
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/kirillkom/evidence-vault/internal/core/domain"
)

// FilterEvidence returns the records matching filter, ordered by its sort key.
// The input slice is not modified.
func FilterEvidence(records []domain.Evidence, filter domain.EvidenceFilter) []domain.Evidence {
	categories := make(map[domain.Category]struct{}, len(filter.Categories))
	for _, c := range filter.Categories {
		categories[c] = struct{}{}
	}
	tags := make(map[string]struct{}, len(filter.Tags))
	for _, t := range filter.Tags {
		if t = strings.TrimSpace(t); t != "" {
			tags[t] = struct{}{}
		}
	}
	start := isoDate(filter.DateStart)
	end := isoDate(filter.DateEnd)
	query := strings.ToLower(strings.TrimSpace(filter.Query))

	out := make([]domain.Evidence, 0, len(records))
	for _, rec := range records {
		if len(categories) > 0 {
			if _, ok := categories[rec.Category]; !ok {
				continue
			}
		}
		if len(tags) > 0 && !hasAnyTag(rec, tags) {
			continue
		}
		date := rec.EffectiveDate()
		if start != "" && date < start {
			continue
		}
		if end != "" && date > end {
			continue
		}
		if query != "" && !matchesText(rec, query) {
			continue
		}
		out = append(out, rec)
	}

	sortEvidence(out, domain.ParseSortKey(string(filter.SortBy)), domain.ParseSortOrder(string(filter.SortOrder)))
	return out
}

func sortEvidence(records []domain.Evidence, key domain.SortKey, order domain.SortOrder) {
	var compare func(a, b domain.Evidence) int
	switch key {
	case domain.SortByRelevance:
		compare = func(a, b domain.Evidence) int { return a.RelevanceScore - b.RelevanceScore }
	case domain.SortByName:
		collator := collate.New(language.Und)
		compare = func(a, b domain.Evidence) int { return collator.CompareString(a.Filename, b.Filename) }
	default:
		compare = func(a, b domain.Evidence) int { return strings.Compare(a.SortDate(), b.SortDate()) }
	}

	sort.SliceStable(records, func(i, j int) bool {
		c := compare(records[i], records[j])
		if order == domain.SortAsc {
			return c < 0
		}
		return c > 0
	})
}

// matchesText is a case-insensitive substring match over filename, summary,
// extracted text prefix and tags. query must already be lower-cased.
func matchesText(rec domain.Evidence, query string) bool {
	if strings.Contains(strings.ToLower(rec.Filename), query) ||
		strings.Contains(strings.ToLower(rec.Summary), query) ||
		strings.Contains(strings.ToLower(rec.ExtractedText), query) {
		return true
	}
	return tagMatches(rec, query)
}

func tagMatches(rec domain.Evidence, query string) bool {
	for _, tag := range rec.Tags {
		if strings.Contains(strings.ToLower(tag), query) {
			return true
		}
	}
	return false
}

func hasAnyTag(rec domain.Evidence, tags map[string]struct{}) bool {
	for _, tag := range rec.Tags {
		if _, ok := tags[tag]; ok {
			return true
		}
	}
	return false
}

func isoDate(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) > 10 {
		return raw[:10]
	}
	return raw
}

// tagVocabulary lists every tag used in records, sorted and de-duplicated.
func tagVocabulary(records []domain.Evidence) []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, rec := range records {
		for _, tag := range rec.Tags {
			if _, ok := seen[tag]; ok {
				continue
			}
			seen[tag] = struct{}{}
			out = append(out, tag)
		}
	}
	sort.Strings(out)
	return out
}

func categoryCounts(records []domain.Evidence) map[domain.Category]int {
	counts := make(map[domain.Category]int, len(domain.Categories))
	for _, c := range domain.Categories {
		counts[c] = 0
	}
	for _, rec := range records {
		counts[rec.Category]++
	}
	return counts
}
