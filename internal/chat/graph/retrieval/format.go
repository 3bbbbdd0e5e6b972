package retrieval

import (
	"fmt"
	"strings"

	"github.com/dashgpt/server/internal/chat/model"
	errx "github.com/dashgpt/server/internal/core/error"
)

const (
	keyPageContent = "page_content"
	keyMetadata    = "metadata"
	keyScore       = "score"
)

// FormatContext concatenates passage contents in retrieval order, each
// followed by a newline.
func FormatContext(passages []model.Passage) string {
	var b strings.Builder
	for _, p := range passages {
		b.WriteString(p.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// Serialize converts passages into plain maps for client-side state. The
// score, when set, sits next to page_content; metadata is carried as is.
func Serialize(passages []model.Passage) []map[string]any {
	out := make([]map[string]any, 0, len(passages))
	for _, p := range passages {
		var md map[string]any
		if p.Metadata != nil {
			md = make(map[string]any, len(p.Metadata))
			for k, v := range p.Metadata {
				md[k] = v
			}
		}
		item := map[string]any{
			keyPageContent: p.Content,
			keyMetadata:    md,
		}
		if p.Score != nil {
			item[keyScore] = *p.Score
		}
		out = append(out, item)
	}
	return out
}

// Deserialize is the inverse of Serialize.
func Deserialize(items []map[string]any) ([]model.Passage, error) {
	out := make([]model.Passage, 0, len(items))
	for i, item := range items {
		content, ok := item[keyPageContent].(string)
		if !ok {
			return nil, errx.Validation(fmt.Sprintf("passage %d: page_content must be a string", i))
		}
		p := model.Passage{Content: content}
		if raw, present := item[keyMetadata]; present && raw != nil {
			m, ok := raw.(map[string]any)
			if !ok {
				return nil, errx.Validation(fmt.Sprintf("passage %d: metadata must be an object", i))
			}
			if m != nil {
				p.Metadata = make(map[string]any, len(m))
				for k, v := range m {
					p.Metadata[k] = v
				}
			}
		}
		if raw, present := item[keyScore]; present && raw != nil {
			s, ok := toFloat(raw)
			if !ok {
				return nil, errx.Validation(fmt.Sprintf("passage %d: score must be a number", i))
			}
			p.Score = &s
		}
		out = append(out, p)
	}
	return out, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
