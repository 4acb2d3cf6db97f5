package transformers

import (
	"context"
	"strings"

	"github.com/custodia-labs/derivex/internal/core/domain"
	"github.com/custodia-labs/derivex/internal/core/ports/driven"
)

// WordCountName is the registry name of the wordcount transformer.
const WordCountName = "wordcount"

// WordCount counts whitespace separated words in a text field.
type WordCount struct {
	field  string
	target string
}

// NewWordCount creates a wordcount transformer reading field and writing target.
func NewWordCount(field, target string) *WordCount {
	if field == "" {
		field = "text"
	}
	if target == "" {
		target = "word_count"
	}
	return &WordCount{field: field, target: target}
}

// Name returns the transformer name.
func (w *WordCount) Name() string {
	return WordCountName
}

// Transform writes the word count. Documents without the field are left alone.
func (w *WordCount) Transform(_ context.Context, updates domain.UpdateSet, original domain.Document, _ driven.TransformContext) (domain.UpdateSet, error) {
	text, ok, err := stringField(original, w.field)
	if err != nil {
		return nil, err
	}
	if !ok {
		return updates, nil
	}
	updates[w.target] = len(strings.Fields(text))
	return updates, nil
}
