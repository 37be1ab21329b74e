package safety

import (
	"github.com/GracePathHQ/gracepath-web/internal/models"
)

// SafetyMessage is the fixed, non-personalized response content returned on
// a crisis-flagged turn. It is deliberately static: nothing about the user's
// message is echoed back and no generation call is made.
const SafetyMessage = "It sounds like you may be going through something very serious right now. " +
	"You don't have to face this alone. Please reach out to one of the crisis resources below, " +
	"or to someone you trust, right away. If you are in immediate danger, call 911."

// Evaluation is the crisis gate's verdict for one inbound message.
type Evaluation struct {
	IsCrisis bool
	Category string
}

// Gate screens inbound text before any session lookup or persistence.
type Gate struct {
	crisis *KeywordMatcher
	grief  *KeywordMatcher
}

// NewGate builds a gate from loaded keyword lists. Construction fails
// upstream if either list failed to load; the service refuses to start with
// an empty gate rather than silently skipping the safety check.
func NewGate(crisis, grief *KeywordList) *Gate {
	return &Gate{
		crisis: NewKeywordMatcher(crisis),
		grief:  NewKeywordMatcher(grief),
	}
}

// Evaluate runs the crisis check. A nil gate or nil matcher fails closed:
// the caller sees a crisis verdict and shows resources instead of
// proceeding to normal processing.
func (g *Gate) Evaluate(text string) Evaluation {
	if g == nil || g.crisis == nil {
		return Evaluation{IsCrisis: true, Category: "unavailable"}
	}
	if g.crisis.Match(text) {
		return Evaluation{IsCrisis: true, Category: g.crisis.Category()}
	}
	return Evaluation{}
}

// DetectGrief runs the secondary bereavement classifier. Non-blocking:
// the result augments the turn response but never short-circuits it.
func (g *Gate) DetectGrief(text string) bool {
	if g == nil || g.grief == nil {
		return false
	}
	return g.grief.Match(text)
}

// CrisisResources returns the fixed support list surfaced with every
// crisis response.
func CrisisResources() []models.CrisisResource {
	return []models.CrisisResource{
		{
			Name:        "988 Suicide & Crisis Lifeline",
			Contact:     "Call or text 988",
			Description: "Free, confidential support 24/7 for people in distress.",
		},
		{
			Name:        "Crisis Text Line",
			Contact:     "Text HOME to 741741",
			Description: "Text with a trained crisis counselor, 24/7.",
		},
		{
			Name:        "National Domestic Violence Hotline",
			Contact:     "1-800-799-7233",
			Description: "Confidential support for anyone affected by abuse.",
		},
		{
			Name:        "RAINN National Sexual Assault Hotline",
			Contact:     "1-800-656-4673",
			Description: "Confidential 24/7 support for survivors of sexual assault.",
		},
	}
}
