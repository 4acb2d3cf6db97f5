package transformers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/derivex/internal/core/domain"
)

func TestStripHTML(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple paragraph", "<p>Hello World</p>", "Hello World"},
		{"nested tags", "<div><p><strong>Bold</strong> text</p></div>", "Bold text"},
		{"script removed", "<p>Before</p><script>alert('evil');</script><p>After</p>", "Before\nAfter"},
		{"style removed", "<style>.foo { color: red; }</style><p>Content</p>", "Content"},
		{"head removed", "<head><meta charset='utf-8'><title>Title</title></head><body>Content</body>", "Content"},
		{"line breaks", "Line 1<br>Line 2<br/>Line 3", "Line 1\nLine 2\nLine 3"},
		{"entities", "<p>&lt;tag&gt; &amp; &quot;quotes&quot;</p>", "<tag> & \"quotes\""},
		{"comments", "<p>Before</p><!-- comment --><p>After</p>", "Before\nAfter"},
		{"list items", "<ul><li>Item 1</li><li>Item 2</li></ul>", "Item 1\nItem 2"},
		{"inline image", `<p>See <img src="image.png" alt="Image"> here</p>`, "See here"},
		{"svg removed", `<p>Before</p><svg width="100"><circle cx="50"/></svg><p>After</p>`, "Before\nAfter"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, stripHTML(tc.input))
		})
	}
}

func TestExtractHTMLTitle(t *testing.T) {
	assert.Equal(t, "Tom & Jerry", extractHTMLTitle("<title> Tom &amp; Jerry </title>"))
	assert.Equal(t, "", extractHTMLTitle("<p>no title</p>"))
}

func TestHTMLText_Transform(t *testing.T) {
	h := NewHTMLText("body_html", "", "title")
	doc := domain.Document{ID: "d", Fields: map[string]any{
		"body_html": "<html><head><title>Invoice</title></head><body><p>Pay now</p></body></html>",
	}}

	out, err := h.Transform(context.Background(), domain.UpdateSet{}, doc, testContext(""))

	require.NoError(t, err)
	assert.Equal(t, domain.UpdateSet{"text": "Pay now", "title": "Invoice"}, out)
}

func TestHTMLText_MissingAndInvalidField(t *testing.T) {
	h := NewHTMLText("", "", "")

	out, err := h.Transform(context.Background(), domain.UpdateSet{}, domain.Document{ID: "d", Fields: map[string]any{}}, testContext(""))
	require.NoError(t, err)
	assert.Empty(t, out)

	_, err = h.Transform(context.Background(), domain.UpdateSet{}, domain.Document{ID: "d", Fields: map[string]any{"html": 3}}, testContext(""))
	assert.Error(t, err)
}

func TestHTMLText_InChain(t *testing.T) {
	r := DefaultRegistry()
	c, err := r.BuildChain([]string{HTMLTextName, WordCountName}, nil)
	require.NoError(t, err)

	doc := domain.Document{ID: "d", Fields: map[string]any{"html": "<p>Please <b>verify your account</b></p>"}}
	res, err := c.Run(context.Background(), doc, testContext(""), true)

	require.NoError(t, err)
	assert.Equal(t, "Please verify your account", res.Updates["text"])
}
