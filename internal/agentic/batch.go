package agentic

import (
	"github.com/dbsunset/dbsunset/internal/classify"
)

// batch is one model call's worth of work: files of a single source type,
// addressed by their positions in the caller's input slice.
type batch struct {
	sourceType classify.SourceType
	indexes    []int
}

// splitBatches chunks each type's candidate indexes into batches of at most
// size files. Types are walked in classification priority order and indexes
// keep their input order, so batch contents are deterministic for a given
// input.
func splitBatches(perType map[classify.SourceType][]int, size int) []batch {
	var batches []batch

	for _, sourceType := range typeOrder(perType) {
		indexes := perType[sourceType]

		for start := 0; start < len(indexes); start += size {
			end := start + size
			if end > len(indexes) {
				end = len(indexes)
			}

			batches = append(batches, batch{
				sourceType: sourceType,
				indexes:    indexes[start:end],
			})
		}
	}

	return batches
}

// typeOrder returns the populated source types in TypePriority order, with
// TypeUnknown last should it ever appear.
func typeOrder(perType map[classify.SourceType][]int) []classify.SourceType {
	ordered := make([]classify.SourceType, 0, len(perType))

	for _, sourceType := range classify.TypePriority {
		if _, ok := perType[sourceType]; ok {
			ordered = append(ordered, sourceType)
		}
	}

	if _, ok := perType[classify.TypeUnknown]; ok {
		ordered = append(ordered, classify.TypeUnknown)
	}

	return ordered
}
