package match

import (
	_ "embed"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/heartmarshall/coursesync/internal/domain"
)

//go:embed topics.yaml
var defaultTopicsYAML []byte

// TopicTable maps a topic name to the normalised keywords that signal it.
type TopicTable map[string][]string

type topicFile struct {
	Topics TopicTable `yaml:"topics"`
}

// DefaultTopics returns the built-in topic table.
func DefaultTopics() TopicTable {
	t, err := parseTopics(defaultTopicsYAML)
	if err != nil {
		panic(fmt.Sprintf("match: built-in topics: %v", err))
	}
	return t
}

// LoadTopics reads a topic table from a YAML file of the form
//
//	topics:
//	  sleep: [nap, crib, swaddle]
func LoadTopics(path string) (TopicTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topics %s: %w", path, err)
	}
	t, err := parseTopics(data)
	if err != nil {
		return nil, fmt.Errorf("parse topics %s: %w", path, err)
	}
	return t, nil
}

func parseTopics(data []byte) (TopicTable, error) {
	var f topicFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if len(f.Topics) == 0 {
		return nil, fmt.Errorf("no topics defined")
	}
	out := make(TopicTable, len(f.Topics))
	for topic, words := range f.Topics {
		norm := make([]string, 0, len(words))
		for _, w := range words {
			if n := domain.NormalizeTitle(w); n != "" {
				norm = append(norm, n)
			}
		}
		slices.Sort(norm)
		out[topic] = slices.Compact(norm)
	}
	return out, nil
}

// index inverts the table: keyword -> topics.
func (t TopicTable) index() map[string][]string {
	idx := make(map[string][]string)
	for topic, words := range t {
		for _, w := range words {
			idx[w] = append(idx[w], topic)
		}
	}
	return idx
}
