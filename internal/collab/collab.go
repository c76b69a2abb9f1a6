// Package collab holds the pipeline's external collaborators: intent
// classification, urgency scoring and response drafting. Each is a
// pure call from the orchestrator's point of view; implementations may
// be local rules or a remote model, selected once at startup.
package collab

import (
	"context"

	"github.com/rotisserie/eris"
)

// Classifier predicts the intent label of an email.
type Classifier interface {
	Classify(ctx context.Context, subject, body string) (string, error)
}

// Scorer rates the urgency of an email body on the 0..2 scale.
type Scorer interface {
	Score(ctx context.Context, body string) (int, error)
}

// Drafter produces a reply for the given sender and intent.
type Drafter interface {
	Draft(ctx context.Context, sender, intent string) (string, error)
}

// Set bundles the three collaborators a pipeline run needs.
type Set struct {
	Classifier Classifier
	Scorer     Scorer
	Drafter    Drafter
}

// Options configures collaborator construction.
type Options struct {
	// Provider selects the classifier/drafter implementation:
	// "rules" (local, default) or "claude".
	Provider string
	// AnthropicKey and Model are required for the claude provider.
	AnthropicKey string
	Model        string
	// TemplatesPath optionally overrides the embedded reply templates.
	TemplatesPath string
}

// New builds the collaborator set for the configured provider. The
// scorer is always the local lexicon heuristic; only classification and
// drafting have a model-backed variant.
func New(opts Options) (*Set, error) {
	drafter, err := NewTemplateDrafter(opts.TemplatesPath)
	if err != nil {
		return nil, err
	}

	set := &Set{
		Classifier: NewRuleClassifier(),
		Scorer:     NewLexiconScorer(),
		Drafter:    drafter,
	}

	switch opts.Provider {
	case "", "rules":
	case "claude":
		if opts.AnthropicKey == "" {
			return nil, eris.New("collab: claude provider requires an anthropic key")
		}
		claude := NewClaude(opts.AnthropicKey, opts.Model)
		set.Classifier = claude
		set.Drafter = NewClaudeDrafter(claude, drafter)
	default:
		return nil, eris.Errorf("collab: unknown provider %q", opts.Provider)
	}

	return set, nil
}
