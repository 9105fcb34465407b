package domain

import "strings"

// NormalizeTags trims tags, drops blanks and removes case-sensitive duplicates,
// keeping first-seen order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// EditTags removes the remove set first, then appends the add set, de-duplicating.
func EditTags(current, add, remove []string) []string {
	drop := make(map[string]struct{}, len(remove))
	for _, tag := range remove {
		drop[strings.TrimSpace(tag)] = struct{}{}
	}
	kept := make([]string, 0, len(current)+len(add))
	for _, tag := range current {
		if _, ok := drop[tag]; ok {
			continue
		}
		kept = append(kept, tag)
	}
	return NormalizeTags(append(kept, add...))
}

// MergeTags keeps existing tags first and appends new ones that are not present yet.
func MergeTags(existing, incoming []string) []string {
	return NormalizeTags(append(append([]string(nil), existing...), incoming...))
}
