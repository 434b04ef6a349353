package match

import (
	"strings"
	"unicode/utf8"

	"github.com/heartmarshall/coursesync/internal/domain"
)

// ExactStrategy pairs titles whose normalised forms are equal. A lesson in
// the record's own chapter is preferred.
type ExactStrategy struct{}

func (ExactStrategy) Name() domain.MatchStrategy { return domain.MatchStrategyExact }

func (ExactStrategy) TryMatch(q Query, candidates []Candidate, used []bool) (int, bool) {
	if q.Norm == "" {
		return 0, false
	}
	return sameChapterFirst(q, candidates, used, func(c Candidate) bool { return c.Norm == q.Norm })
}

// CleanStrategy pairs titles that are equal once generic prefixes such as
// "Module 3" or "FAQ" are removed.
type CleanStrategy struct{}

func (CleanStrategy) Name() domain.MatchStrategy { return domain.MatchStrategyClean }

func (CleanStrategy) TryMatch(q Query, candidates []Candidate, used []bool) (int, bool) {
	if q.Clean == "" {
		return 0, false
	}
	return sameChapterFirst(q, candidates, used, func(c Candidate) bool { return c.Clean == q.Clean })
}

// ContainmentStrategy pairs titles where one normalised title contains the
// other. The shorter title must have at least MinLength runes. The
// candidate closest in length wins.
type ContainmentStrategy struct {
	MinLength int
}

func (ContainmentStrategy) Name() domain.MatchStrategy { return domain.MatchStrategyContainment }

func (s ContainmentStrategy) TryMatch(q Query, candidates []Candidate, used []bool) (int, bool) {
	qLen := utf8.RuneCountInString(q.Norm)
	best, bestDiff := -1, 0
	for i, c := range candidates {
		if used[i] || c.Norm == "" || q.Norm == "" {
			continue
		}
		cLen := utf8.RuneCountInString(c.Norm)
		if min(qLen, cLen) < s.MinLength {
			continue
		}
		if !strings.Contains(q.Norm, c.Norm) && !strings.Contains(c.Norm, q.Norm) {
			continue
		}
		diff := qLen - cLen
		if diff < 0 {
			diff = -diff
		}
		if best < 0 || diff < bestDiff {
			best, bestDiff = i, diff
		}
	}
	return best, best >= 0
}

// KeywordStrategy scores candidates by shared words plus twice the shared
// topics. The best score of at least MinScore wins; ties go to the
// candidate that comes first in the tree.
type KeywordStrategy struct {
	MinScore int
}

func (KeywordStrategy) Name() domain.MatchStrategy { return domain.MatchStrategyKeyword }

func (s KeywordStrategy) TryMatch(q Query, candidates []Candidate, used []bool) (int, bool) {
	best, bestScore := -1, 0
	for i, c := range candidates {
		if used[i] {
			continue
		}
		score := Score(q, c)
		if score >= s.MinScore && score > bestScore {
			best, bestScore = i, score
		}
	}
	return best, best >= 0
}

// Score returns the keyword score of a query against a candidate.
func Score(q Query, c Candidate) int {
	return overlap(q.Tokens, c.Tokens) + 2*overlap(q.Topics, c.Topics)
}

// FallbackStrategy pairs a record with the first unused lesson of its own
// chapter. It never reaches into another chapter.
type FallbackStrategy struct{}

func (FallbackStrategy) Name() domain.MatchStrategy { return domain.MatchStrategyFallback }

func (FallbackStrategy) TryMatch(q Query, candidates []Candidate, used []bool) (int, bool) {
	if q.ChapterNorm == "" {
		return 0, false
	}
	return first(candidates, used, func(c Candidate) bool { return c.ChapterNorm == q.ChapterNorm })
}

func sameChapterFirst(q Query, candidates []Candidate, used []bool, pred func(Candidate) bool) (int, bool) {
	if i, ok := first(candidates, used, func(c Candidate) bool { return c.ChapterNorm == q.ChapterNorm && pred(c) }); ok {
		return i, true
	}
	return first(candidates, used, pred)
}

func first(candidates []Candidate, used []bool, pred func(Candidate) bool) (int, bool) {
	for i, c := range candidates {
		if !used[i] && pred(c) {
			return i, true
		}
	}
	return 0, false
}

func overlap(a, b map[string]struct{}) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	n := 0
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}
