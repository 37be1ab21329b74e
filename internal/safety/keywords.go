// Package safety implements the crisis gate that screens every inbound
// message before any session processing, plus a secondary grief classifier.
// Matching is deliberately conservative and auditable: case-insensitive
// substring search against curated, versioned phrase lists. No stemming,
// no scoring models.
package safety

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed keywords_crisis.yaml
var defaultCrisisKeywords []byte

//go:embed keywords_grief.yaml
var defaultGriefKeywords []byte

// KeywordList is a versioned, reviewable phrase list. Lists live as YAML
// artifacts (embedded defaults, overridable via file path) so the phrases
// can be reviewed and updated without a code change.
type KeywordList struct {
	Version  string   `yaml:"version"`
	Category string   `yaml:"category"`
	Phrases  []string `yaml:"phrases"`
}

// LoadKeywordList parses a keyword list from YAML bytes.
// An empty phrase list is rejected: running the gate with nothing to match
// would silently disable it.
func LoadKeywordList(data []byte) (*KeywordList, error) {
	var list KeywordList
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse keyword list: %w", err)
	}
	if len(list.Phrases) == 0 {
		return nil, fmt.Errorf("keyword list %q has no phrases", list.Category)
	}
	return &list, nil
}

// LoadKeywordListFile reads a keyword list from a file path, falling back
// to the given embedded default when path is empty.
func LoadKeywordListFile(path string, fallback []byte) (*KeywordList, error) {
	data := fallback
	if path != "" {
		fileData, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read keyword list %s: %w", path, err)
		}
		data = fileData
	}
	return LoadKeywordList(data)
}

// DefaultCrisisKeywords returns the embedded crisis phrase list.
func DefaultCrisisKeywords() (*KeywordList, error) {
	return LoadKeywordList(defaultCrisisKeywords)
}

// DefaultGriefKeywords returns the embedded grief phrase list.
func DefaultGriefKeywords() (*KeywordList, error) {
	return LoadKeywordList(defaultGriefKeywords)
}

// KeywordMatcher reports whether a text contains any phrase from its list.
// Phrases are pre-lowercased at construction; Match lowercases its input
// once and runs plain substring checks.
type KeywordMatcher struct {
	category string
	phrases  []string
}

// NewKeywordMatcher builds a matcher from a loaded keyword list.
func NewKeywordMatcher(list *KeywordList) *KeywordMatcher {
	phrases := make([]string, 0, len(list.Phrases))
	for _, p := range list.Phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			phrases = append(phrases, p)
		}
	}
	return &KeywordMatcher{category: list.Category, phrases: phrases}
}

// Match reports whether text contains any configured phrase, any position,
// case-insensitive.
func (m *KeywordMatcher) Match(text string) bool {
	lowered := strings.ToLower(text)
	for _, phrase := range m.phrases {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}
	return false
}

// Category returns the list's category label ("crisis", "grief").
func (m *KeywordMatcher) Category() string {
	return m.category
}
