package scheduler

import "time"

// entry is a pending fire instant for one schedule.
type entry struct {
	scheduleID int64
	at         time.Time
}

// fireHeap is a min-heap of pending fires ordered by instant. One entry per
// schedule at most.
type fireHeap []*entry

func (h fireHeap) Len() int           { return len(h) }
func (h fireHeap) Less(i, j int) bool { return h[i].at.Before(h[j].at) }
func (h fireHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *fireHeap) Push(x any) { *h = append(*h, x.(*entry)) }

func (h *fireHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}
