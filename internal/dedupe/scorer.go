// Package dedupe scores candidate texts against the recently published
// corpus to flag near-duplicates before they reach the schedule.
package dedupe

import (
	"context"
	"strings"

	"postline-bot/internal/database"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
	"golang.org/x/text/cases"
)

// DefaultCorpusLimit bounds the window of published texts compared against.
const DefaultCorpusLimit = 300

// Scorer computes fuzzy similarity of a text against recent published posts.
type Scorer struct {
	posts  database.PostRepository
	limit  int
	folder cases.Caser
}

// NewScorer creates a scorer over the given post repository.
func NewScorer(posts database.PostRepository) *Scorer {
	return &Scorer{
		posts:  posts,
		limit:  DefaultCorpusLimit,
		folder: cases.Fold(),
	}
}

// Compute returns the highest token-set similarity (0..1) between the text
// and the bounded window of most recently published texts. An empty corpus
// or empty text scores 0.
func (s *Scorer) Compute(ctx context.Context, text string) (float64, error) {
	candidate := s.normalize(text)
	if candidate == "" {
		return 0, nil
	}

	corpus, err := s.posts.RecentPublishedTexts(ctx, s.limit)
	if err != nil {
		return 0, err
	}

	best := 0.0
	for _, published := range corpus {
		other := s.normalize(published)
		if other == "" {
			continue
		}
		score := float64(fuzzy.TokenSetRatio(candidate, other)) / 100.0
		if score > best {
			best = score
		}
	}
	return best, nil
}

// normalize collapses whitespace and case-folds so that formatting and
// casing differences do not mask duplicates.
func (s *Scorer) normalize(text string) string {
	return s.folder.String(strings.Join(strings.Fields(text), " "))
}
