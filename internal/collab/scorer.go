package collab

import (
	"context"
	"strings"

	"github.com/sells-group/triage-cli/internal/model"
)

// Polarity lexicon for the urgency heuristic. Scores are in [-1, 1];
// the body's polarity is the mean score of matched words. More negative
// sentiment means higher urgency.
var polarityLexicon = map[string]float64{
	// negative
	"furious":       -1.0,
	"outraged":      -1.0,
	"unacceptable":  -0.9,
	"terrible":      -0.9,
	"worst":         -0.9,
	"awful":         -0.8,
	"horrible":      -0.8,
	"angry":         -0.8,
	"scam":          -0.8,
	"useless":       -0.7,
	"broken":        -0.6,
	"defective":     -0.6,
	"disappointed":  -0.6,
	"frustrated":    -0.6,
	"urgent":        -0.5,
	"immediately":   -0.5,
	"never":         -0.4,
	"wrong":         -0.4,
	"late":          -0.3,
	"delayed":       -0.3,
	"problem":       -0.3,
	"issue":         -0.2,
	"waiting":       -0.2,
	// positive
	"thanks":    0.5,
	"thank":     0.5,
	"great":     0.7,
	"love":      0.8,
	"excellent": 0.9,
	"wonderful": 0.8,
	"happy":     0.6,
	"pleased":   0.6,
	"good":      0.4,
	"appreciate": 0.5,
}

// LexiconScorer rates urgency from body sentiment: polarity below -0.5
// scores 2, below 0 scores 1, otherwise 0.
type LexiconScorer struct{}

// NewLexiconScorer returns the sentiment-based urgency scorer.
func NewLexiconScorer() *LexiconScorer {
	return &LexiconScorer{}
}

func (s *LexiconScorer) Score(_ context.Context, body string) (int, error) {
	polarity := Polarity(body)

	var urgency int
	switch {
	case polarity < -0.5:
		urgency = 2
	case polarity < 0:
		urgency = 1
	default:
		urgency = 0
	}
	return model.ClampUrgency(urgency), nil
}

// Polarity computes the mean lexicon score of the words in text, in
// [-1, 1]. Text with no matched words is neutral.
func Polarity(text string) float64 {
	var sum float64
	var matched int
	for _, word := range strings.FieldsFunc(NormalizeText(text), func(r rune) bool {
		return !isWordRune(r)
	}) {
		if score, ok := polarityLexicon[word]; ok {
			sum += score
			matched++
		}
	}
	if matched == 0 {
		return 0
	}
	return sum / float64(matched)
}

func isWordRune(r rune) bool {
	return r == '\'' ||
		(r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}
