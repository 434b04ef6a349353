// Package match pairs source records with persisted lessons of one course
// through an ordered chain of title-matching strategies.
package match

import (
	"strings"
	"unicode/utf8"

	"github.com/heartmarshall/coursesync/internal/domain"
)

// Defaults for Options fields left at zero.
const (
	DefaultMinContainmentLength = 5
	DefaultMinKeywordScore      = 2
)

// Options configures the default strategy chain.
type Options struct {
	FallbackEnabled      bool
	MinContainmentLength int
	MinKeywordScore      int
	// Topics is the keyword table; nil means DefaultTopics.
	Topics TopicTable
}

// Query is a source record with its precomputed title forms.
type Query struct {
	Record      domain.SourceRecord
	Norm        string
	Clean       string
	ChapterNorm string
	Tokens      map[string]struct{}
	Topics      map[string]struct{}
}

// Candidate is a persisted lesson with its precomputed title forms.
type Candidate struct {
	Lesson      domain.Lesson
	Norm        string
	Clean       string
	ChapterNorm string
	Tokens      map[string]struct{}
	Topics      map[string]struct{}
}

// Strategy tries to pair one query with an unused candidate. It returns the
// index of the chosen candidate.
type Strategy interface {
	Name() domain.MatchStrategy
	TryMatch(q Query, candidates []Candidate, used []bool) (int, bool)
}

// Matcher runs a strategy chain. It is pure and deterministic.
type Matcher struct {
	strategies []Strategy
	topics     map[string][]string
}

// New builds the default chain: exact, clean, containment, keyword and,
// when enabled, fallback.
func New(opts Options) *Matcher {
	if opts.MinContainmentLength <= 0 {
		opts.MinContainmentLength = DefaultMinContainmentLength
	}
	if opts.MinKeywordScore <= 0 {
		opts.MinKeywordScore = DefaultMinKeywordScore
	}
	if opts.Topics == nil {
		opts.Topics = DefaultTopics()
	}

	chain := []Strategy{
		ExactStrategy{},
		CleanStrategy{},
		ContainmentStrategy{MinLength: opts.MinContainmentLength},
		KeywordStrategy{MinScore: opts.MinKeywordScore},
	}
	if opts.FallbackEnabled {
		chain = append(chain, FallbackStrategy{})
	}
	return &Matcher{strategies: chain, topics: opts.Topics.index()}
}

// NewWithStrategies builds a matcher over a custom chain.
func NewWithStrategies(topics TopicTable, strategies ...Strategy) *Matcher {
	return &Matcher{strategies: strategies, topics: topics.index()}
}

// Match pairs every record with at most one lesson of tree and returns one
// result per record, in record order. Each strategy runs over all records
// still unmatched, in input order, before the next strategy runs. A lesson
// is used at most once.
func (m *Matcher) Match(records []domain.SourceRecord, tree []domain.ChapterWithLessons) []domain.MatchResult {
	var candidates []Candidate
	for _, ch := range tree {
		chNorm := domain.NormalizeTitle(ch.Title)
		for _, l := range ch.Lessons {
			norm := domain.NormalizeTitle(l.Title)
			candidates = append(candidates, Candidate{
				Lesson:      l,
				Norm:        norm,
				Clean:       domain.CleanTitle(l.Title),
				ChapterNorm: chNorm,
				Tokens:      keywordTokens(norm),
				Topics:      m.topicsOf(norm),
			})
		}
	}

	queries := make([]Query, len(records))
	for i, rec := range records {
		norm := domain.NormalizeTitle(rec.LessonName)
		queries[i] = Query{
			Record:      rec,
			Norm:        norm,
			Clean:       domain.CleanTitle(rec.LessonName),
			ChapterNorm: domain.NormalizeTitle(rec.ChapterName),
			Tokens:      keywordTokens(norm),
			Topics:      m.topicsOf(norm),
		}
	}

	results := make([]domain.MatchResult, len(records))
	matched := make([]bool, len(records))
	used := make([]bool, len(candidates))

	for _, s := range m.strategies {
		for i, q := range queries {
			if matched[i] {
				continue
			}
			j, ok := s.TryMatch(q, candidates, used)
			if !ok || used[j] {
				continue
			}
			used[j] = true
			matched[i] = true
			lesson := candidates[j].Lesson
			results[i] = domain.MatchResult{
				Record:     q.Record,
				Lesson:     &lesson,
				Strategy:   s.Name(),
				Confidence: s.Name().Confidence(),
			}
		}
	}

	for i, q := range queries {
		if !matched[i] {
			results[i] = domain.MatchResult{
				Record:     q.Record,
				Strategy:   domain.MatchStrategyNone,
				Confidence: domain.ConfidenceNone,
			}
		}
	}
	return results
}

func (m *Matcher) topicsOf(norm string) map[string]struct{} {
	out := make(map[string]struct{})
	if norm == "" {
		return out
	}
	padded := " " + norm + " "
	for kw, topics := range m.topics {
		if strings.Contains(padded, " "+kw+" ") {
			for _, t := range topics {
				out[t] = struct{}{}
			}
		}
	}
	return out
}

// stopWords carry no topical signal.
var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "your": {}, "you": {},
	"how": {}, "what": {}, "when": {}, "why": {}, "are": {}, "can": {},
	"from": {}, "into": {}, "about": {}, "baby": {}, "babys": {}, "babies": {},
	"newborn": {}, "tips": {}, "guide": {}, "basics": {}, "part": {},
}

// keywordTokens returns the words of a normalised title that are at least
// three runes long and not stop words.
func keywordTokens(norm string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tok := range strings.Fields(norm) {
		if utf8.RuneCountInString(tok) < 3 {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		out[tok] = struct{}{}
	}
	return out
}
