// Package matcher scores catalog items against extracted keywords.
// Scoring is Jaccard similarity between the lower-cased keyword set and the
// lower-cased union of an item's tags.
package matcher

import (
	"sort"
	"strings"

	"github.com/manipulatorai/engage-api/internal/domain"
)

// ScoredItem pairs a catalog item with its relevance score.
type ScoredItem struct {
	Item  domain.Item `json:"item"`
	Score float64     `json:"score"`
}

// Match ranks items against the keyword set and returns those scoring at or
// above threshold, sorted by score descending. Ties keep item insertion
// order (stable sort). Duplicate keywords are deduplicated before scoring;
// an empty keyword set or tag set scores 0 and is excluded unless the
// threshold is <= 0.
func Match(keywords []string, items []domain.Item, threshold float64) []ScoredItem {
	keywordSet := normalize(keywords)

	scored := make([]ScoredItem, 0, len(items))
	for _, item := range items {
		score := jaccard(keywordSet, normalize(item.Tags))
		if score >= threshold {
			scored = append(scored, ScoredItem{Item: item, Score: score})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	return scored
}

// Top returns at most limit of the highest-scored items from Match.
func Top(keywords []string, items []domain.Item, threshold float64, limit int) []ScoredItem {
	scored := Match(keywords, items, threshold)
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

// Items extracts the plain items from a scored slice, preserving order.
func Items(scored []ScoredItem) []domain.Item {
	items := make([]domain.Item, len(scored))
	for i, s := range scored {
		items[i] = s.Item
	}
	return items
}

// normalize lower-cases and deduplicates the given terms, dropping empties.
func normalize(terms []string) map[string]struct{} {
	set := make(map[string]struct{}, len(terms))
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" {
			set[term] = struct{}{}
		}
	}
	return set
}

// jaccard computes intersection size over union size for two sets.
// Returns 0 when either set is empty.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	intersection := 0
	for term := range a {
		if _, ok := b[term]; ok {
			intersection++
		}
	}

	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}

	return float64(intersection) / float64(union)
}
