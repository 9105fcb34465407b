package domain

import "strings"

type SortKey string

const (
	SortByDate      SortKey = "date"
	SortByRelevance SortKey = "relevance"
	SortByName      SortKey = "name"
)

type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// EvidenceFilter selects and orders records of one vault. Dimensions are
// combined with AND; values inside Categories and Tags are combined with OR.
// Empty sets mean no restriction.
type EvidenceFilter struct {
	Categories []Category
	Tags       []string
	DateStart  string
	DateEnd    string
	Query      string
	SortBy     SortKey
	SortOrder  SortOrder
}

func ParseSortKey(raw string) SortKey {
	switch SortKey(strings.ToLower(strings.TrimSpace(raw))) {
	case SortByRelevance:
		return SortByRelevance
	case SortByName:
		return SortByName
	default:
		return SortByDate
	}
}

func ParseSortOrder(raw string) SortOrder {
	if SortOrder(strings.ToLower(strings.TrimSpace(raw))) == SortAsc {
		return SortAsc
	}
	return SortDesc
}

// EvidenceListing is a filtered view plus vault-wide facets.
type EvidenceListing struct {
	Evidence       []Evidence       `json:"evidence"`
	Total          int              `json:"total"`
	Tags           []string         `json:"tags"`
	CategoryCounts map[Category]int `json:"categoryCounts"`
}

type SearchMode string

const (
	SearchModeSemantic SearchMode = "semantic"
	SearchModeLocal    SearchMode = "local"
)

// ScoredEvidence is a search hit with a 0-100 relevance for this query.
type ScoredEvidence struct {
	Evidence
	SearchRelevance int `json:"searchRelevance"`
}

type SearchResult struct {
	Query    string           `json:"query"`
	Mode     SearchMode       `json:"mode"`
	Evidence []ScoredEvidence `json:"evidence"`
}

// SearchChunk is one scored passage returned by the remote search index.
type SearchChunk struct {
	ObjectID string  `json:"objectId"`
	Score    float64 `json:"score"`
	Text     string  `json:"text,omitempty"`
}
