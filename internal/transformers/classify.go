package transformers

import (
	"context"
	"sort"
	"strings"

	"github.com/custodia-labs/derivex/internal/core/domain"
	"github.com/custodia-labs/derivex/internal/core/ports/driven"
)

// ClassifyName is the registry name of the classify transformer.
const ClassifyName = "classify"

// Uncategorized is assigned when no rule matches.
const Uncategorized = "uncategorized"

// DefaultClassifyRules maps categories to the keywords that select them.
var DefaultClassifyRules = map[string][]string{
	"malware":  {"trojan", "ransomware", "backdoor", "botnet"},
	"phishing": {"password", "login", "verify your account"},
	"spam":     {"unsubscribe", "winner", "free offer"},
}

// Classify assigns a category from keyword rules over a text field.
// When an earlier tag transformer stamped the pass, the tag is recorded
// in classified_by, so its output depends on where it runs in the chain.
type Classify struct {
	field      string
	categories []string
	rules      map[string][]string
}

// ClassifyOption configures the classify transformer.
type ClassifyOption func(*Classify)

// WithClassifyField sets the field the rules are matched against.
func WithClassifyField(path string) ClassifyOption {
	return func(c *Classify) {
		if path != "" {
			c.field = path
		}
	}
}

// WithClassifyRules replaces the default keyword rules.
func WithClassifyRules(rules map[string][]string) ClassifyOption {
	return func(c *Classify) {
		if len(rules) > 0 {
			c.rules = rules
		}
	}
}

// NewClassify creates a classify transformer.
func NewClassify(opts ...ClassifyOption) *Classify {
	c := &Classify{field: "text", rules: DefaultClassifyRules}
	for _, opt := range opts {
		opt(c)
	}

	lowered := make(map[string][]string, len(c.rules))
	for category, keywords := range c.rules {
		for _, kw := range keywords {
			lowered[category] = append(lowered[category], strings.ToLower(kw))
		}
		c.categories = append(c.categories, category)
	}
	sort.Strings(c.categories)
	c.rules = lowered
	return c
}

// Name returns the transformer name.
func (c *Classify) Name() string {
	return ClassifyName
}

// Transform sets category, and classified_by when the pass is tagged.
func (c *Classify) Transform(_ context.Context, updates domain.UpdateSet, original domain.Document, _ driven.TransformContext) (domain.UpdateSet, error) {
	text, ok, err := stringField(original, c.field)
	if err != nil {
		return nil, err
	}
	if !ok {
		return updates, nil
	}

	updates["category"] = c.categorize(strings.ToLower(text))
	if tag, ok := tagOf(updates); ok {
		updates["classified_by"] = tag
	}
	return updates, nil
}

func (c *Classify) categorize(text string) string {
	for _, category := range c.categories {
		for _, kw := range c.rules[category] {
			if strings.Contains(text, kw) {
				return category
			}
		}
	}
	return Uncategorized
}
