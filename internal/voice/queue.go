package voice

import (
	"container/heap"

	"github.com/shipos/autonomous/internal/types"
)

// speakQueue is a priority queue over pending VoiceRequests: lower
// types.VoicePriority values speak first, ties broken by enqueue order
// (oldest first) so a flood of same-priority notifications doesn't starve.
// Ported from the prototype's queue.PriorityQueue((priority, time.time(), req)).
type speakQueue struct {
	items []queuedRequest
	seq   int
}

type queuedRequest struct {
	req types.VoiceRequest
	seq int
}

func newSpeakQueue() *speakQueue {
	q := &speakQueue{}
	heap.Init(q)
	return q
}

func (q *speakQueue) Len() int { return len(q.items) }

func (q *speakQueue) Less(i, j int) bool {
	if q.items[i].req.Priority != q.items[j].req.Priority {
		return q.items[i].req.Priority < q.items[j].req.Priority
	}
	return q.items[i].seq < q.items[j].seq
}

func (q *speakQueue) Swap(i, j int) { q.items[i], q.items[j] = q.items[j], q.items[i] }

func (q *speakQueue) Push(x any) {
	q.items = append(q.items, x.(queuedRequest))
}

func (q *speakQueue) Pop() any {
	old := q.items
	n := len(old)
	item := old[n-1]
	q.items = old[:n-1]
	return item
}

// Enqueue adds a request, ordered by priority then arrival.
func (q *speakQueue) Enqueue(req types.VoiceRequest) {
	q.seq++
	heap.Push(q, queuedRequest{req: req, seq: q.seq})
}

// Dequeue removes and returns the highest-priority pending request.
func (q *speakQueue) Dequeue() (types.VoiceRequest, bool) {
	if q.Len() == 0 {
		return types.VoiceRequest{}, false
	}
	return heap.Pop(q).(queuedRequest).req, true
}
