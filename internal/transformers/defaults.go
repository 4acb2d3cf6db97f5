package transformers

import (
	"fmt"
	"strings"

	"github.com/custodia-labs/derivex/internal/core/ports/driven"
)

// RegisterDefaults registers all built-in transformers with the registry.
// Call this during application initialisation to enable standard transformers.
func RegisterDefaults(r *Registry) {
	r.Register(TagName, func(map[string]any) (driven.Transformer, error) { return NewTag(), nil })
	r.Register(ClassifyName, buildClassify)
	r.Register(WordCountName, buildWordCount)
	r.Register(FingerprintName, buildFingerprint)
	r.Register(IPAddrName, buildIPAddr)
	r.Register(LowercaseName, buildLowercase)
	r.Register(HTMLTextName, buildHTMLText)
}

// DefaultRegistry returns a registry holding the built-in transformers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	RegisterDefaults(r)
	return r
}

// buildClassify creates a classify transformer from params.
// Supported params:
//   - classify_field (string): Field matched against the rules (default: text)
//   - classify_rules (map): category -> keyword list or comma separated keywords
func buildClassify(params map[string]any) (driven.Transformer, error) {
	opts := []ClassifyOption{WithClassifyField(getStringFromConfig(params, "classify_field", ""))}

	if raw, ok := params["classify_rules"]; ok {
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("classify_rules must be a map, got %T", raw)
		}
		rules := make(map[string][]string, len(m))
		for category := range m {
			rules[category] = getStringSliceFromConfig(m, category, nil)
		}
		opts = append(opts, WithClassifyRules(rules))
	}

	return NewClassify(opts...), nil
}

// buildWordCount creates a wordcount transformer from params.
// Supported params:
//   - wordcount_field (string): Source field (default: text)
//   - wordcount_target (string): Destination field (default: word_count)
func buildWordCount(params map[string]any) (driven.Transformer, error) {
	return NewWordCount(
		getStringFromConfig(params, "wordcount_field", ""),
		getStringFromConfig(params, "wordcount_target", ""),
	), nil
}

// buildFingerprint creates a fingerprint transformer from params.
// Supported params:
//   - fingerprint_fields (list or comma separated): Hashed fields (default: text)
//   - fingerprint_target (string): Destination field (default: fingerprint)
func buildFingerprint(params map[string]any) (driven.Transformer, error) {
	return NewFingerprint(
		getStringSliceFromConfig(params, "fingerprint_fields", nil),
		getStringFromConfig(params, "fingerprint_target", ""),
	), nil
}

// buildIPAddr creates an ipaddr transformer from params.
// Supported params:
//   - ipaddr_field (string): Source field (default: text)
//   - ipaddr_target (string): Destination field (default: ip_addresses)
func buildIPAddr(params map[string]any) (driven.Transformer, error) {
	return NewIPAddr(
		getStringFromConfig(params, "ipaddr_field", ""),
		getStringFromConfig(params, "ipaddr_target", ""),
	), nil
}

// buildLowercase creates a lowercase transformer from params.
// Supported params:
//   - lowercase_fields (list or comma separated): Fields to normalise (default: title)
func buildLowercase(params map[string]any) (driven.Transformer, error) {
	return NewLowercase(getStringSliceFromConfig(params, "lowercase_fields", nil)), nil
}

// buildHTMLText creates an htmltext transformer from params.
// Supported params:
//   - htmltext_field (string): Field holding HTML (default: html)
//   - htmltext_target (string): Destination of the text (default: text)
//   - htmltext_title (string): Destination of the <title>, disabled when empty
func buildHTMLText(params map[string]any) (driven.Transformer, error) {
	return NewHTMLText(
		getStringFromConfig(params, "htmltext_field", ""),
		getStringFromConfig(params, "htmltext_target", ""),
		getStringFromConfig(params, "htmltext_title", ""),
	), nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
