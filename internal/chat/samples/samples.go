package samples

import (
	"math/rand/v2"
)

type template struct {
	start string
	ends  []string
}

var topics = []string{"dogs", "cats", "dinosaurs", "aliens", "artificial intelligence"}

var templates = []template{
	{start: "Tell me a one liner joke about ", ends: topics},
	{start: "Tell me a joke about ", ends: topics},
}

// Question is a suggested prompt split for display: Start is emphasised.
type Question struct {
	Start string `json:"question_start"`
	End   string `json:"question_end"`
	Text  string `json:"text"`
}

func random(r *rand.Rand) Question {
	t := templates[r.IntN(len(templates))]
	end := t.ends[r.IntN(len(t.ends))]
	return Question{Start: t.start, End: end, Text: t.start + end}
}

// Pick returns n distinct sample questions. n is capped at the number of
// distinct questions available.
func Pick(r *rand.Rand, n int) []Question {
	total := 0
	for _, t := range templates {
		total += len(t.ends)
	}
	if n > total {
		n = total
	}
	out := make([]Question, 0, n)
	seen := make(map[string]struct{}, n)
	for len(out) < n {
		q := random(r)
		if _, dup := seen[q.Text]; dup {
			continue
		}
		seen[q.Text] = struct{}{}
		out = append(out, q)
	}
	return out
}
