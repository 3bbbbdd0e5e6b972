package httpapi

import (
	"bytes"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/dashgpt/server/internal/chat/model"
)

// Renderer turns answers and related passages into sanitized HTML.
type Renderer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

func NewRenderer() *Renderer {
	md := goldmark.New(
		goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
		goldmark.WithExtensions(
			highlighting.NewHighlighting(
				highlighting.WithStyle("dracula"),
				highlighting.WithFormatOptions(
					chromahtml.WithLineNumbers(false),
				),
			),
		),
	)

	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").OnElements("code", "pre", "span")
	p.AllowAttrs("style").OnElements("span")

	return &Renderer{md: md, policy: p}
}

// HTML converts markdown to sanitized HTML.
func (r *Renderer) HTML(src string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return string(r.policy.SanitizeBytes(buf.Bytes())), nil
}

// Answer renders the answer and one HTML block per related passage, in
// retrieval order.
func (r *Renderer) Answer(content string, related []model.Passage) (string, []string, error) {
	html, err := r.HTML(content)
	if err != nil {
		return "", nil, err
	}
	out := make([]string, 0, len(related))
	for _, p := range related {
		h, err := r.HTML(p.Content)
		if err != nil {
			return "", nil, err
		}
		out = append(out, h)
	}
	return html, out, nil
}
