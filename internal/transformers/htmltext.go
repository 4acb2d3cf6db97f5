package transformers

import (
	"context"
	"html"
	"regexp"
	"strings"

	"github.com/custodia-labs/derivex/internal/core/domain"
	"github.com/custodia-labs/derivex/internal/core/ports/driven"
)

// HTMLTextName is the registry name of the htmltext transformer.
const HTMLTextName = "htmltext"

// HTMLText derives readable text (and a title) from a field holding HTML.
type HTMLText struct {
	field       string
	target      string
	titleTarget string
}

// NewHTMLText creates an htmltext transformer reading field and writing the
// stripped text to target. An empty titleTarget disables title extraction.
func NewHTMLText(field, target, titleTarget string) *HTMLText {
	if field == "" {
		field = "html"
	}
	if target == "" {
		target = "text"
	}
	return &HTMLText{field: field, target: target, titleTarget: titleTarget}
}

// Name returns the transformer name.
func (h *HTMLText) Name() string {
	return HTMLTextName
}

// Transform writes the stripped text. Documents without the field are left alone.
func (h *HTMLText) Transform(_ context.Context, updates domain.UpdateSet, original domain.Document, _ driven.TransformContext) (domain.UpdateSet, error) {
	raw, ok, err := stringField(original, h.field)
	if err != nil {
		return nil, err
	}
	if !ok {
		return updates, nil
	}

	updates[h.target] = stripHTML(raw)
	if h.titleTarget != "" {
		if title := extractHTMLTitle(raw); title != "" {
			updates[h.titleTarget] = title
		}
	}
	return updates, nil
}

var (
	titleTag         = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	scriptTag        = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleTag         = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	noscriptTag      = regexp.MustCompile(`(?is)<noscript[^>]*>.*?</noscript>`)
	headTag          = regexp.MustCompile(`(?is)<head[^>]*>.*?</head>`)
	svgTag           = regexp.MustCompile(`(?is)<svg[^>]*>.*?</svg>`)
	htmlComments     = regexp.MustCompile(`(?s)<!--.*?-->`)
	closeBlockTags   = regexp.MustCompile(`(?i)</(p|div|h[1-6]|li|tr|blockquote|pre|table|section|article)>`)
	openBlockTags    = regexp.MustCompile(`(?i)<(p|div|h[1-6]|li|tr|blockquote|pre|table|section|article)[^>]*>`)
	lineBreakTags    = regexp.MustCompile(`(?i)<(br|hr)\s*/?>`)
	allTags          = regexp.MustCompile(`<[^>]+>`)
	horizontalSpaces = regexp.MustCompile(`[ \t]+`)
)

// extractHTMLTitle returns the unescaped <title>, or "" when there is none.
func extractHTMLTitle(content string) string {
	m := titleTag.FindStringSubmatch(content)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(m[1]))
}

// stripHTML drops non-content elements and tags, keeping one line per block.
func stripHTML(content string) string {
	for _, re := range []*regexp.Regexp{scriptTag, styleTag, noscriptTag, headTag, svgTag, htmlComments} {
		content = re.ReplaceAllString(content, "")
	}
	content = openBlockTags.ReplaceAllString(content, "\n")
	content = closeBlockTags.ReplaceAllString(content, "\n")
	content = lineBreakTags.ReplaceAllString(content, "\n")
	content = allTags.ReplaceAllString(content, "")
	content = html.UnescapeString(content)
	content = horizontalSpaces.ReplaceAllString(content, " ")

	lines := strings.Split(content, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
