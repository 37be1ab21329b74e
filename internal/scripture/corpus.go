// Package scripture holds the verse corpus and the relevance retriever that
// ranks passages against a user's message.
package scripture

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/GracePathHQ/gracepath-web/internal/models"
)

//go:embed verses.yaml
var defaultCorpus []byte

// Passage is one corpus entry: a short scripture text plus its reference.
type Passage struct {
	Book        string `yaml:"book" json:"book"`
	Chapter     int    `yaml:"chapter" json:"chapter"`
	VerseStart  int    `yaml:"verse_start" json:"verse_start"`
	VerseEnd    *int   `yaml:"verse_end,omitempty" json:"verse_end,omitempty"`
	Translation string `yaml:"translation" json:"translation"`
	Text        string `yaml:"text" json:"text"`
}

// Reference converts the passage to its message-attachable value object.
func (p Passage) Reference() models.ScriptureReference {
	return models.ScriptureReference{
		Book:        p.Book,
		Chapter:     p.Chapter,
		VerseStart:  p.VerseStart,
		VerseEnd:    p.VerseEnd,
		Translation: p.Translation,
		Text:        p.Text,
	}
}

// Corpus is an ordered, immutable passage collection. Order matters:
// the retriever's tie-break and fallback both preserve corpus order.
type Corpus struct {
	Version  string    `yaml:"version"`
	Passages []Passage `yaml:"passages"`
}

// LoadCorpus parses a corpus from YAML bytes.
func LoadCorpus(data []byte) (*Corpus, error) {
	var c Corpus
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse verse corpus: %w", err)
	}
	if len(c.Passages) == 0 {
		return nil, fmt.Errorf("verse corpus has no passages")
	}
	return &c, nil
}

// LoadCorpusFile reads a corpus from a file path, falling back to the
// embedded default when path is empty.
func LoadCorpusFile(path string) (*Corpus, error) {
	data := defaultCorpus
	if path != "" {
		fileData, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read verse corpus %s: %w", path, err)
		}
		data = fileData
	}
	return LoadCorpus(data)
}
