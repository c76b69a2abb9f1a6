package collab

import (
	"context"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// defaultTemplates maps intents to reply templates. "{sender}" is
// substituted with the customer's address.
var defaultTemplates = map[string]string{
	"Refund Request": "Dear {sender},\n\nWe have received your refund request. " +
		"Please follow the instructions to return the item.\n\nBest regards,\nCustomer Support Team",
	"Billing Issue": "Dear {sender},\n\nWe've noted your billing issue. " +
		"Please check your invoice details and let us know if there are any discrepancies.\n\nSincerely,\nCustomer Support Team",
	"Cancellation": "Dear {sender},\n\nYour cancellation request is being processed. " +
		"We will update you shortly.\n\nRegards,\nCustomer Support Team",
}

// fallbackTemplate is used for intents without a dedicated template.
const fallbackTemplate = "Dear {sender},\n\nThank you for reaching out. " +
	"We are reviewing your request and will respond soon.\n\nBest,\nCustomer Support Team"

// TemplateDrafter renders a reply from a fixed intent→template mapping
// with one fallback for unrecognized intents.
type TemplateDrafter struct {
	templates map[string]string
	fallback  string
}

// templateFile is the YAML override shape: an intent→template map plus
// an optional fallback.
type templateFile struct {
	Templates map[string]string `yaml:"templates"`
	Fallback  string            `yaml:"fallback"`
}

// NewTemplateDrafter builds the drafter from the embedded templates,
// overlaid with the YAML file at path when one is given.
func NewTemplateDrafter(path string) (*TemplateDrafter, error) {
	d := &TemplateDrafter{
		templates: make(map[string]string, len(defaultTemplates)),
		fallback:  fallbackTemplate,
	}
	for intent, tmpl := range defaultTemplates {
		d.templates[intent] = tmpl
	}

	if path == "" {
		return d, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "drafter: read templates %s", path)
	}
	var tf templateFile
	if err := yaml.Unmarshal(raw, &tf); err != nil {
		return nil, eris.Wrapf(err, "drafter: decode templates %s", path)
	}
	for intent, tmpl := range tf.Templates {
		d.templates[intent] = tmpl
	}
	if tf.Fallback != "" {
		d.fallback = tf.Fallback
	}
	return d, nil
}

func (d *TemplateDrafter) Draft(_ context.Context, sender, intent string) (string, error) {
	tmpl, ok := d.templates[intent]
	if !ok {
		tmpl = d.fallback
	}
	if sender == "" {
		sender = "Customer"
	}
	return strings.ReplaceAll(tmpl, "{sender}", sender), nil
}
