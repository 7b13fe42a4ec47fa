package phash

import "fmt"

const (
	// FusedDuplicateThreshold is the minimum average similarity (percent)
	// across pHash, aHash and dHash for a pairwise duplicate decision.
	FusedDuplicateThreshold = 90.0
	// GroupingThreshold is the maximum pHash Hamming distance for batch grouping.
	GroupingThreshold = 10
)

// Hamming returns the number of differing bit positions.
func Hamming(a, b Hash) (int, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("hamming %d vs %d bits: %w", len(a), len(b), ErrLengthMismatch)
	}
	dist := 0
	for i := 0; i < len(a); i++ {
		if a[i] != b[i] {
			dist++
		}
	}
	return dist, nil
}

// Similarity returns (len - distance) / len * 100.
func Similarity(a, b Hash) (float64, error) {
	dist, err := Hamming(a, b)
	if err != nil {
		return 0, err
	}
	if len(a) == 0 {
		return 100, nil
	}
	return float64(len(a)-dist) / float64(len(a)) * 100, nil
}

// Comparison is the result of a fused pairwise comparison.
type Comparison struct {
	PHashDistance int     `json:"phash_distance"`
	PHash         float64 `json:"phash_similarity"`
	AHash         float64 `json:"ahash_similarity"`
	DHash         float64 `json:"dhash_similarity"`
	Average       float64 `json:"average_similarity"`
	IsDuplicate   bool    `json:"is_duplicate"`
}

// Compare fuses the three similarities. Two images are duplicates when the
// average is at least FusedDuplicateThreshold.
func Compare(a, b Set) (Comparison, error) {
	dist, err := Hamming(a.PHash, b.PHash)
	if err != nil {
		return Comparison{}, fmt.Errorf("compare phash: %w", err)
	}
	ps, _ := Similarity(a.PHash, b.PHash)
	as, err := Similarity(a.AHash, b.AHash)
	if err != nil {
		return Comparison{}, fmt.Errorf("compare ahash: %w", err)
	}
	ds, err := Similarity(a.DHash, b.DHash)
	if err != nil {
		return Comparison{}, fmt.Errorf("compare dhash: %w", err)
	}

	avg := (ps + as + ds) / 3
	return Comparison{
		PHashDistance: dist,
		PHash:         ps,
		AHash:         as,
		DHash:         ds,
		Average:       avg,
		IsDuplicate:   avg >= FusedDuplicateThreshold,
	}, nil
}

// Item is one (id, pHash) pair fed to GroupDuplicates.
type Item struct {
	ID   string
	Hash Hash
}

// Group is a set of near-duplicate ids; Anchor is the item the others were
// measured against.
type Group struct {
	Anchor  string   `json:"anchor_id"`
	Members []string `json:"asset_ids"`
}

// GroupDuplicates walks items in order. Each not yet grouped item becomes an
// anchor and absorbs every later unabsorbed item within threshold of it.
// Absorbed items are never compared against later anchors, so the result is
// not transitive. Items whose hash length differs from the anchor's are
// skipped. Singleton groups are not reported.
func GroupDuplicates(items []Item, threshold int) []Group {
	used := make([]bool, len(items))
	var groups []Group

	for i := range items {
		if used[i] {
			continue
		}
		used[i] = true
		members := []string{items[i].ID}

		for j := i + 1; j < len(items); j++ {
			if used[j] {
				continue
			}
			dist, err := Hamming(items[i].Hash, items[j].Hash)
			if err != nil {
				continue
			}
			if dist <= threshold {
				used[j] = true
				members = append(members, items[j].ID)
			}
		}

		if len(members) > 1 {
			groups = append(groups, Group{Anchor: items[i].ID, Members: members})
		}
	}
	return groups
}
