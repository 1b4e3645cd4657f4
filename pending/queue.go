// Package pending implements the pending-frame queue (spec.md §4.3,
// component C3): the list of frames a worker's dispatch loop still owes a
// visit to within the current tick, walked by position so that a node
// dispatched mid-walk may append more pending records which the same
// walk still picks up, resetting only once the walk has genuinely caught
// up to the end.
//
// The chunked linked-list storage is adapted from the teacher's
// ChunkedIngress (eventloop/ingress.go): fixed-size array nodes with
// readPos/writePos cursors give O(1) push/pop without shifting and amortize
// allocation via a sync.Pool of chunks, and its "not thread-safe, caller
// holds external synchronization" contract maps directly onto
// spec.md §5's single-owner-worker rule for a pending queue.
package pending

import (
	"sync"

	"github.com/pktgraph/vpgraph/frame"
)

const recordsPerChunk = 128

// Record is one pending-frame entry (spec.md §3 Pending-frame record):
// the target node/arc to dispatch, the frame to dispatch it with, and the
// next-frame slot (or NoNextFrame) that originated it, so a later
// ownership swap can find and rewrite this record.
type Record struct {
	TargetRuntimeIndex int
	Arc                int
	Frame              frame.Index
	NextFrameIndex     int
}

// NoNextFrame mirrors nextframe.NoNextFrame for records enqueued without
// an owning next-frame slot.
const NoNextFrame = -1

type chunkNode struct {
	records [recordsPerChunk]Record
	next    *chunkNode
	readPos int
	pos     int
}

var chunkPool = sync.Pool{New: func() any { return &chunkNode{} }}

func newChunkNode() *chunkNode {
	c := chunkPool.Get().(*chunkNode)
	c.pos, c.readPos, c.next = 0, 0, nil
	return c
}

func returnChunkNode(c *chunkNode) {
	for i := 0; i < c.pos; i++ {
		c.records[i] = Record{}
	}
	c.pos, c.readPos, c.next = 0, 0, nil
	chunkPool.Put(c)
}

// Queue is one worker's pending-frame queue. Not safe for concurrent use:
// the dispatcher's single tick goroutine owns it (spec.md §5).
type Queue struct {
	head, tail *chunkNode
	length     int
}

// NewQueue constructs an empty Queue.
func NewQueue() *Queue { return &Queue{} }

// Push appends a pending record, used both by PushPending (the next-frame
// table's Flush) and directly by nodes bypassing a next-frame slot
// (spec.md §4.3 put_frame_to_node).
func (q *Queue) Push(r Record) {
	if q.tail == nil {
		q.tail = newChunkNode()
		q.head = q.tail
	}
	if q.tail.pos == recordsPerChunk {
		next := newChunkNode()
		q.tail.next = next
		q.tail = next
	}
	q.tail.records[q.tail.pos] = r
	q.tail.pos++
	q.length++
}

// Pop removes and returns the oldest pending record. Returns false if
// empty at the moment of the call — callers walking the queue during a
// dispatch tick should keep calling Pop until it returns false, since a
// dispatch invoked from within the walk may Push more records that the
// same walk must still see (spec.md §4.3: "iteration ... tolerates
// concurrent appends during the walk").
func (q *Queue) Pop() (Record, bool) {
	if q.head == nil {
		return Record{}, false
	}
	if q.head.readPos >= q.head.pos {
		if q.head == q.tail {
			q.head.pos, q.head.readPos = 0, 0
			return Record{}, false
		}
		old := q.head
		q.head = q.head.next
		returnChunkNode(old)
	}
	if q.head.readPos >= q.head.pos {
		return Record{}, false
	}

	r := q.head.records[q.head.readPos]
	q.head.records[q.head.readPos] = Record{}
	q.head.readPos++
	q.length--

	if q.head.readPos >= q.head.pos {
		if q.head == q.tail {
			q.head.pos, q.head.readPos = 0, 0
		} else {
			old := q.head
			q.head = q.head.next
			returnChunkNode(old)
		}
	}
	return r, true
}

// Len returns the number of records not yet popped.
func (q *Queue) Len() int { return q.length }

// Walk drains every currently-queued record via fn, including records fn
// itself causes to be Pushed (spec.md §4.3), returning once the queue is
// genuinely caught up. fn must not retain the Record after it returns.
func (q *Queue) Walk(fn func(Record)) {
	for {
		r, ok := q.Pop()
		if !ok {
			return
		}
		fn(r)
	}
}

// PushPending implements nextframe.Pusher: the next-frame table calls this
// directly from Flush so that a frame becoming pending always reaches the
// queue in the same step, rather than relying on every caller of
// SetNextFrameBuffer/Speculator.Finish to remember a separate Push.
func (q *Queue) PushPending(targetRuntimeIndex, arc int, f frame.Index, nextFrameIndex int) {
	q.Push(Record{
		TargetRuntimeIndex: targetRuntimeIndex,
		Arc:                arc,
		Frame:              f,
		NextFrameIndex:     nextFrameIndex,
	})
}

// RewriteOriginatingSlot implements nextframe.PendingRewriter: every
// still-queued record whose Frame is oldFrame (i.e. it was appended while
// referencing the next-frame slot that has since swapped frames with
// another producer) is updated to point at newNextFrameIndex, so that
// when it is eventually dispatched its originating slot can still be
// identified (e.g. for ClearPending bookkeeping).
func (q *Queue) RewriteOriginatingSlot(oldFrame frame.Index, newNextFrameIndex int) {
	for c := q.head; c != nil; c = c.next {
		for i := c.readPos; i < c.pos; i++ {
			if c.records[i].Frame == oldFrame {
				c.records[i].NextFrameIndex = newNextFrameIndex
			}
		}
	}
}
