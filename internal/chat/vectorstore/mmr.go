package vectorstore

import "math"

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		av, bv := float64(a[i]), float64(b[i])
		dot += av * bv
		normA += av * av
		normB += bv * bv
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// selectMMR greedily picks k hits maximising
// lambda*sim(query, d) - (1-lambda)*max(sim(d, picked)).
// The first pick is always the most relevant candidate.
func selectMMR(query []float32, hits []Hit, k int, lambda float64) []Hit {
	if k >= len(hits) {
		k = len(hits)
	}
	if k <= 0 {
		return []Hit{}
	}

	relevance := make([]float64, len(hits))
	for i, h := range hits {
		if h.Embedding != nil {
			relevance[i] = cosineSimilarity(query, h.Embedding)
		} else {
			relevance[i] = h.Score
		}
	}

	picked := make([]int, 0, k)
	used := make([]bool, len(hits))
	for len(picked) < k {
		best, bestScore := -1, math.Inf(-1)
		for i := range hits {
			if used[i] {
				continue
			}
			redundancy := 0.0
			for _, j := range picked {
				if s := cosineSimilarity(hits[i].Embedding, hits[j].Embedding); s > redundancy {
					redundancy = s
				}
			}
			score := lambda*relevance[i] - (1-lambda)*redundancy
			if score > bestScore {
				best, bestScore = i, score
			}
		}
		used[best] = true
		picked = append(picked, best)
	}

	out := make([]Hit, len(picked))
	for i, idx := range picked {
		out[i] = hits[idx]
	}
	return out
}
