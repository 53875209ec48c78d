package voice

import (
	"testing"

	"github.com/shipos/autonomous/internal/types"
)

func TestSpeakQueueOrdersByPriority(t *testing.T) {
	q := newSpeakQueue()
	q.Enqueue(types.VoiceRequest{Text: "monologue", Priority: types.PriorityMonologue})
	q.Enqueue(types.VoiceRequest{Text: "emergency", Priority: types.PriorityEmergency})
	q.Enqueue(types.VoiceRequest{Text: "notification", Priority: types.PriorityNotification})
	q.Enqueue(types.VoiceRequest{Text: "talk", Priority: types.PriorityTalk})

	want := []string{"talk", "emergency", "notification", "monologue"}
	for _, w := range want {
		req, ok := q.Dequeue()
		if !ok || req.Text != w {
			t.Fatalf("expected %q next, got %q (ok=%v)", w, req.Text, ok)
		}
	}
}

func TestSpeakQueueTiesBrokenByArrival(t *testing.T) {
	q := newSpeakQueue()
	q.Enqueue(types.VoiceRequest{Text: "first", Priority: types.PriorityNotification})
	q.Enqueue(types.VoiceRequest{Text: "second", Priority: types.PriorityNotification})

	first, _ := q.Dequeue()
	second, _ := q.Dequeue()
	if first.Text != "first" || second.Text != "second" {
		t.Fatalf("expected FIFO among same-priority requests, got %q then %q", first.Text, second.Text)
	}
}

func TestSpeakQueueDequeueEmptyReturnsFalse(t *testing.T) {
	q := newSpeakQueue()
	if _, ok := q.Dequeue(); ok {
		t.Fatalf("expected ok=false for an empty queue")
	}
}
