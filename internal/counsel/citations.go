package counsel

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/GracePathHQ/gracepath-web/internal/models"
	"github.com/GracePathHQ/gracepath-web/internal/scripture"
)

// citationPattern matches "Book Chapter:Verse" tokens in a generated reply,
// including numbered books ("1 Peter 5:7") and verse ranges ("Psalm 23:1-4").
var citationPattern = regexp.MustCompile(`\b([1-3]\s)?([A-Z][a-z]+(?:\s(?:of\s)?[A-Z][a-z]+)?)\s(\d{1,3}):(\d{1,3})(?:-(\d{1,3}))?`)

const defaultTranslation = "NIV"

// ParseCitations extracts scripture references cited in a generated reply.
// When a citation matches one of the retrieved passages, the passage's text
// and translation are attached; otherwise the reference carries the parsed
// coordinates only. Duplicate citations collapse to the first occurrence.
func ParseCitations(reply string, passages []scripture.Passage) []models.ScriptureReference {
	matches := citationPattern.FindAllStringSubmatch(reply, -1)
	if len(matches) == 0 {
		return nil
	}

	refs := make([]models.ScriptureReference, 0, len(matches))
	seen := make(map[string]bool)

	for _, m := range matches {
		book := strings.TrimSpace(m[1] + m[2])
		chapter, _ := strconv.Atoi(m[3])
		verseStart, _ := strconv.Atoi(m[4])
		var verseEnd *int
		if m[5] != "" {
			v, _ := strconv.Atoi(m[5])
			verseEnd = &v
		}

		key := book + " " + m[3] + ":" + m[4]
		if seen[key] {
			continue
		}
		seen[key] = true

		ref := models.ScriptureReference{
			Book:        book,
			Chapter:     chapter,
			VerseStart:  verseStart,
			VerseEnd:    verseEnd,
			Translation: defaultTranslation,
		}

		if p := findPassage(passages, book, chapter, verseStart); p != nil {
			ref.Translation = p.Translation
			ref.Text = p.Text
			if ref.VerseEnd == nil {
				ref.VerseEnd = p.VerseEnd
			}
		}

		refs = append(refs, ref)
	}

	return refs
}

func findPassage(passages []scripture.Passage, book string, chapter, verseStart int) *scripture.Passage {
	for i := range passages {
		p := &passages[i]
		if strings.EqualFold(p.Book, book) && p.Chapter == chapter && p.VerseStart == verseStart {
			return p
		}
	}
	return nil
}
