// Package ranker selects the best-scoring rows of a similarity row.
package ranker

import "container/heap"

// ScoredDoc is one ranked row.
type ScoredDoc struct {
	Row   int     `json:"row"`
	Score float64 `json:"score"`
}

// Better reports whether a ranks before b: higher score first, then lower
// row.
func Better(a, b ScoredDoc) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Row < b.Row
}

// TopK returns the k best entries of scores, skipping the row exclude
// (pass -1 to keep every row). The result is ordered best first.
func TopK(scores []float64, k, exclude int) []ScoredDoc {
	if k <= 0 {
		return nil
	}
	h := make(scoredDocHeap, 0, min(k, len(scores)))
	for row, score := range scores {
		if row == exclude {
			continue
		}
		doc := ScoredDoc{Row: row, Score: score}
		if h.Len() < k {
			heap.Push(&h, doc)
			continue
		}
		if Better(doc, h[0]) {
			h[0] = doc
			heap.Fix(&h, 0)
		}
	}
	result := make([]ScoredDoc, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(&h).(ScoredDoc)
	}
	return result
}

// scoredDocHeap is a min-heap with the worst kept entry at the root.
type scoredDocHeap []ScoredDoc

func (h scoredDocHeap) Len() int           { return len(h) }
func (h scoredDocHeap) Less(i, j int) bool { return Better(h[j], h[i]) }
func (h scoredDocHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *scoredDocHeap) Push(x interface{}) {
	*h = append(*h, x.(ScoredDoc))
}

func (h *scoredDocHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
