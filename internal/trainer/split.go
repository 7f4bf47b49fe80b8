package trainer

import (
	"math"
	"math/rand"
	"sort"
)

// Split holds the row indices of each partition, in ascending order
type Split struct {
	Train []int
	Test  []int
	// TrainOnly lists classes too small to stratify, kept entirely in Train
	TrainOnly []int
}

// StratifiedSplit partitions row indices so each label keeps its share in
// both partitions. Every class is shuffled with the same seeded source, in
// ascending label order, and contributes round(testSize*n) rows to Test.
func StratifiedSplit(labels []int, testSize float64, seed int64) Split {
	byClass := make(map[int][]int)
	for i, l := range labels {
		byClass[l] = append(byClass[l], i)
	}

	rng := rand.New(rand.NewSource(seed))
	var s Split
	for _, class := range sortedKeys(byClass) {
		idx := byClass[class]
		if len(idx) < 2 {
			s.Train = append(s.Train, idx...)
			s.TrainOnly = append(s.TrainOnly, class)
			continue
		}
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })

		nTest := int(math.Round(testSize * float64(len(idx))))
		if nTest >= len(idx) {
			nTest = len(idx) - 1
		}
		s.Test = append(s.Test, idx[:nTest]...)
		s.Train = append(s.Train, idx[nTest:]...)
	}

	sort.Ints(s.Train)
	sort.Ints(s.Test)
	return s
}
