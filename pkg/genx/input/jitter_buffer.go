package input

import (
	"cmp"
	"container/heap"
)

// Timestamped is a packet with a comparable timestamp.
type Timestamped[T cmp.Ordered] interface {
	Timestamp() T
}

// JitterBuffer reorders out-of-order packets by timestamp using a min-heap.
// Packets with equal timestamps come out in push order.
//
// The buffer is bounded: when a push takes it over capacity, the packet with
// the smallest timestamp is evicted, keeping the most recent window.
//
// Example usage:
//
//	type Packet struct {
//	    Data []byte
//	    TS   int64
//	}
//	func (p Packet) Timestamp() int64 { return p.TS }
//
//	jb := NewJitterBuffer[int64, Packet](100)
//	jb.Push(Packet{Data: data, TS: timestamp})
//	pkt, ok := jb.Pop()
//
// A JitterBuffer is not safe for concurrent use.
type JitterBuffer[T cmp.Ordered, P Timestamped[T]] struct {
	heap     jitterHeap[T, P]
	maxItems int
	seq      uint64
	dropped  uint64
}

// NewJitterBuffer creates a JitterBuffer holding at most maxItems packets.
// With maxItems <= 0 every Push is a no-op.
func NewJitterBuffer[T cmp.Ordered, P Timestamped[T]](maxItems int) *JitterBuffer[T, P] {
	return &JitterBuffer[T, P]{
		maxItems: maxItems,
	}
}

// Push adds a packet. If the buffer then exceeds its capacity, the packet
// with the smallest timestamp is dropped.
func (b *JitterBuffer[T, P]) Push(pkt P) {
	if b.maxItems <= 0 {
		return
	}
	heap.Push(&b.heap, jitterEntry[T, P]{pkt: pkt, seq: b.seq})
	b.seq++
	for b.heap.Len() > b.maxItems {
		heap.Pop(&b.heap)
		b.dropped++
	}
}

// Pop returns and removes the packet with the smallest timestamp.
// Returns false if the buffer is empty.
func (b *JitterBuffer[T, P]) Pop() (P, bool) {
	if b.heap.Len() == 0 {
		var zero P
		return zero, false
	}
	return heap.Pop(&b.heap).(jitterEntry[T, P]).pkt, true
}

// Peek returns the packet with the smallest timestamp without removing it.
func (b *JitterBuffer[T, P]) Peek() (P, bool) {
	if b.heap.Len() == 0 {
		var zero P
		return zero, false
	}
	return b.heap[0].pkt, true
}

func (b *JitterBuffer[T, P]) Len() int {
	return b.heap.Len()
}

// Cap returns the capacity given to NewJitterBuffer.
func (b *JitterBuffer[T, P]) Cap() int {
	return b.maxItems
}

// Clear removes all packets. The drop counter is kept.
func (b *JitterBuffer[T, P]) Clear() {
	clear(b.heap)
	b.heap = b.heap[:0]
}

// Dropped returns the number of packets evicted by Push so far.
func (b *JitterBuffer[T, P]) Dropped() uint64 {
	return b.dropped
}

type jitterEntry[T cmp.Ordered, P Timestamped[T]] struct {
	pkt P
	seq uint64
}

// jitterHeap orders entries by (timestamp, seq).
type jitterHeap[T cmp.Ordered, P Timestamped[T]] []jitterEntry[T, P]

func (h jitterHeap[T, P]) Len() int { return len(h) }

func (h jitterHeap[T, P]) Less(i, j int) bool {
	if c := cmp.Compare(h[i].pkt.Timestamp(), h[j].pkt.Timestamp()); c != 0 {
		return c < 0
	}
	return h[i].seq < h[j].seq
}

func (h jitterHeap[T, P]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *jitterHeap[T, P]) Push(x any) {
	*h = append(*h, x.(jitterEntry[T, P]))
}

func (h *jitterHeap[T, P]) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = jitterEntry[T, P]{} // avoid memory leak
	*h = old[:n-1]
	return x
}
