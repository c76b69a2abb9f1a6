package collab

import (
	"context"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// intentRules maps each known intent to the phrases that signal it.
// Order matters: earlier intents win on a tie, so the more specific
// money-related intents come first.
var intentRules = []struct {
	label   string
	phrases []string
}{
	{"Refund Request", []string{"refund", "money back", "reimburse"}},
	{"Billing Issue", []string{"billing", "invoice", "charged", "overcharge", "double charge", "payment"}},
	{"Cancellation", []string{"cancel", "cancellation", "unsubscribe"}},
	{"Return Request", []string{"return the", "return my", "send it back", "return label"}},
	{"Exchange Request", []string{"exchange", "swap", "different size", "wrong size"}},
	{"Shipping Delay", []string{"shipping", "delivery", "has not arrived", "hasn't arrived", "still waiting", "tracking"}},
	{"Account Access", []string{"password", "login", "log in", "locked out", "sign in", "account access"}},
	{"Warranty Claim", []string{"warranty", "defective", "broken", "stopped working", "malfunction"}},
	{"Order Issue", []string{"order", "missing item", "wrong item"}},
	{"Product Inquiry", []string{"does it", "is it compatible", "how do i", "product question", "specification"}},
	{"Complaint", []string{"terrible", "worst", "unacceptable", "disappointed", "complaint"}},
}

// FallbackIntent is returned when no rule matches.
const FallbackIntent = "General Question"

// RuleClassifier is the local keyword-based intent classifier. It is
// the default collaborator and the fallback when no model is
// configured.
type RuleClassifier struct{}

// NewRuleClassifier returns the keyword classifier.
func NewRuleClassifier() *RuleClassifier {
	return &RuleClassifier{}
}

func (c *RuleClassifier) Classify(_ context.Context, subject, body string) (string, error) {
	text := NormalizeText(subject + " " + body)
	for _, rule := range intentRules {
		for _, phrase := range rule.phrases {
			if strings.Contains(text, phrase) {
				return rule.label, nil
			}
		}
	}
	return FallbackIntent, nil
}

// NormalizeText lowercases and NFC-normalizes free text so keyword and
// lexicon matching is stable across composed/decomposed input.
func NormalizeText(s string) string {
	return strings.ToLower(norm.NFC.String(s))
}
