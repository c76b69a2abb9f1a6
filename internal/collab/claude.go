package collab

import (
	"context"
	"strings"
	"sync"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/triage-cli/internal/model"
)

const classifySystemPrompt = "You label customer support emails. " +
	"Reply with exactly one intent label from the provided list and nothing else."

const draftSystemPrompt = "You draft short, polite customer support replies. " +
	"Reply with the email body only, no preamble."

// Claude is the model-backed classifier. The underlying SDK client is
// built once, on first use, and reused for the life of the process.
type Claude struct {
	apiKey string
	model  string

	once   sync.Once
	client sdk.Client
}

// NewClaude returns a Claude collaborator. No network work happens
// until the first call.
func NewClaude(apiKey, modelID string) *Claude {
	if modelID == "" {
		modelID = "claude-haiku-4-5-20251001"
	}
	return &Claude{apiKey: apiKey, model: modelID}
}

func (c *Claude) init() {
	c.once.Do(func() {
		c.client = sdk.NewClient(option.WithAPIKey(c.apiKey))
	})
}

func (c *Claude) Classify(ctx context.Context, subject, body string) (string, error) {
	c.init()

	labels := make([]string, 0, len(intentRules)+1)
	for _, rule := range intentRules {
		labels = append(labels, rule.label)
	}
	labels = append(labels, FallbackIntent)

	prompt := "Intent labels: " + strings.Join(labels, ", ") +
		"\n\nSubject: " + subject + "\nBody: " + body

	text, err := c.complete(ctx, classifySystemPrompt, prompt, 64)
	if err != nil {
		return "", eris.Wrap(model.ErrCollaborator, err.Error())
	}

	label := strings.TrimSpace(text)
	for _, known := range labels {
		if strings.EqualFold(label, known) {
			return known, nil
		}
	}
	zap.L().Warn("model returned unknown intent label, using fallback",
		zap.String("label", label),
	)
	return FallbackIntent, nil
}

func (c *Claude) complete(ctx context.Context, system, prompt string, maxTokens int64) (string, error) {
	msg, err := c.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: maxTokens,
		System:    []sdk.TextBlockParam{{Text: system}},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", eris.Wrap(err, "claude: create message")
	}

	var out strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	if out.Len() == 0 {
		return "", eris.New("claude: empty completion")
	}
	return out.String(), nil
}

// ClaudeDrafter drafts replies with the model and falls back to the
// template drafter when the model call fails, so a drafting outage
// degrades rather than failing the run.
type ClaudeDrafter struct {
	claude   *Claude
	fallback *TemplateDrafter
}

// NewClaudeDrafter wraps claude with a template fallback.
func NewClaudeDrafter(claude *Claude, fallback *TemplateDrafter) *ClaudeDrafter {
	return &ClaudeDrafter{claude: claude, fallback: fallback}
}

func (d *ClaudeDrafter) Draft(ctx context.Context, sender, intent string) (string, error) {
	d.claude.init()

	prompt := "Customer: " + sender + "\nIntent: " + intent +
		"\n\nDraft the reply, addressed to the customer, signed by the Customer Support Team."

	text, err := d.claude.complete(ctx, draftSystemPrompt, prompt, 512)
	if err != nil {
		zap.L().Warn("model draft failed, using template fallback", zap.Error(err))
		return d.fallback.Draft(ctx, sender, intent)
	}
	return strings.TrimSpace(text), nil
}
