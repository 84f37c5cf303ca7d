package service

import "sort"

// FusedHit is one entry of a rank-fused result list.
type FusedHit struct {
	ID    int32
	Score float64
}

// FuseRRF merges ranked candidate lists with Reciprocal Rank Fusion.
// Each item contributes 1/(k+rank) per list it appears in, rank being
// its 1-based position within that list; items absent from a list
// contribute nothing for it. The output is ordered by descending fused
// score, ties broken by ascending ID so the order is deterministic.
//
// Fusion is computed here rather than delegated to the index backend so
// the ranking is reproducible and testable independent of it.
// Parameters:
//   - lists: ranked candidate ID lists, best first.
//   - k: rank dampening constant; 60 is the conventional choice.
// Returns:
//   - []FusedHit: every distinct ID across all lists with its fused score.
func FuseRRF(lists [][]int32, k int) []FusedHit {
	scores := make(map[int32]float64)
	for _, list := range lists {
		for rank, id := range list {
			scores[id] += 1.0 / float64(k+rank+1)
		}
	}

	hits := make([]FusedHit, 0, len(scores))
	for id, score := range scores {
		hits = append(hits, FusedHit{ID: id, Score: score})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	return hits
}
