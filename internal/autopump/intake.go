package autopump

import "sync"

// intake is the in-memory buffer between ingest goroutines and the pump
// loop. It is not persisted; a restart drops at most one flush window of
// enrolments.
type intake struct {
	mu     sync.Mutex
	byFeed map[int64][]int64
}

func newIntake() *intake {
	return &intake{byFeed: map[int64][]int64{}}
}

func (in *intake) add(feedID, itemID int64) {
	in.mu.Lock()
	in.byFeed[feedID] = append(in.byFeed[feedID], itemID)
	in.mu.Unlock()
}

func (in *intake) addAll(feedID int64, itemIDs []int64) {
	in.mu.Lock()
	in.byFeed[feedID] = append(in.byFeed[feedID], itemIDs...)
	in.mu.Unlock()
}

// drain swaps the buffer out and returns it.
func (in *intake) drain() map[int64][]int64 {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := in.byFeed
	in.byFeed = map[int64][]int64{}
	return out
}
