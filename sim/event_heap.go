package sim

import "container/heap"

// EventHeap is the time-ordered priority queue driving the simulation.
// Ordering: timestamp, then insertion order (FIFO). The FIFO tie-break keeps
// comparative runs with a fixed seed bit-for-bit deterministic.
type EventHeap struct {
	items   []scheduledEvent
	nextSeq uint64
}

type scheduledEvent struct {
	ev  Event
	seq uint64
}

func (h *EventHeap) Len() int { return len(h.items) }

func (h *EventHeap) Less(i, j int) bool {
	if h.items[i].ev.Timestamp() != h.items[j].ev.Timestamp() {
		return h.items[i].ev.Timestamp() < h.items[j].ev.Timestamp()
	}
	return h.items[i].seq < h.items[j].seq
}

func (h *EventHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *EventHeap) Push(x any) {
	h.items = append(h.items, x.(scheduledEvent))
}

func (h *EventHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}

// Schedule adds an event to the heap.
func (h *EventHeap) Schedule(ev Event) {
	heap.Push(h, scheduledEvent{ev: ev, seq: h.nextSeq})
	h.nextSeq++
}

// PopNext removes and returns the earliest event, or nil when empty.
func (h *EventHeap) PopNext() Event {
	if h.Len() == 0 {
		return nil
	}
	return heap.Pop(h).(scheduledEvent).ev
}

// Peek returns the earliest event without removing it, or nil when empty.
func (h *EventHeap) Peek() Event {
	if h.Len() == 0 {
		return nil
	}
	return h.items[0].ev
}
