package prompts

import (
	"github.com/cloudwego/eino/schema"
)

// TokenCounter measures and trims text in model tokens.
type TokenCounter interface {
	Count(text string) int
	Tail(text string, n int) string
}

// ApplyBudget keeps a prompt within ceiling tokens. When the total exceeds
// the ceiling, the newest user message is cut to its trailing keep tokens and
// every other message is left alone. The input slice is not modified.
func ApplyBudget(msgs []*schema.Message, counter TokenCounter, ceiling, keep int) ([]*schema.Message, int, bool) {
	total := 0
	for _, m := range msgs {
		if m != nil {
			total += counter.Count(m.Content)
		}
	}
	if ceiling <= 0 || total <= ceiling {
		return msgs, total, false
	}

	out := make([]*schema.Message, len(msgs))
	copy(out, msgs)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] == nil || out[i].Role != schema.User {
			continue
		}
		cut := *out[i]
		cut.Content = counter.Tail(cut.Content, keep)
		out[i] = &cut
		break
	}
	return out, total, true
}
