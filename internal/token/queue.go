package token

import "sync/atomic"

// QueueType selects one of the four round-robin queues. Lower values
// have higher priority.
type QueueType uint8

const (
	PrivilegedPaid QueueType = iota
	PrivilegedFree
	NormalPaid
	NormalFree
	queueCount
)

func (q QueueType) String() string {
	switch q {
	case PrivilegedPaid:
		return "privileged_paid"
	case PrivilegedFree:
		return "privileged_free"
	case NormalPaid:
		return "normal_paid"
	default:
		return "normal_free"
	}
}

// paid reports whether the queue serves paid-plan credentials.
func (q QueueType) paid() bool {
	return q == PrivilegedPaid || q == NormalPaid
}

// queueHeads holds the four round-robin cursors. They are process-wide
// and advance independently; relaxed ordering is fine, a stale read
// only costs one extra skip.
var queueHeads [queueCount]atomic.Uint64

// entry pairs a token key with a positional hint into the store's dense
// slot array. The hint goes stale when the record's key rotates; select
// falls back to the key index then.
type entry struct {
	key    Key
	idHint int
}

// queue is the shared candidate sequence all four cursors walk. The
// store mutates it under its write lock.
type queue struct {
	entries []entry
	index   map[Key]int // key -> position in entries
}

func newQueue(capacity int) *queue {
	return &queue{
		entries: make([]entry, 0, capacity),
		index:   make(map[Key]int, capacity),
	}
}

func (q *queue) push(key Key, id int) {
	q.index[key] = len(q.entries)
	q.entries = append(q.entries, entry{key: key, idHint: id})
}

// setKey rewrites an entry in place after a credential's key rotated.
func (q *queue) setKey(old, new Key) bool {
	pos, ok := q.index[old]
	if !ok {
		return false
	}
	delete(q.index, old)
	q.entries[pos].key = new
	q.index[new] = pos
	return true
}

// remove deletes the entry and pulls every cursor that sits past the
// removed position back by one, so the "next" candidate is unchanged.
func (q *queue) remove(key Key) bool {
	pos, ok := q.index[key]
	if !ok {
		return false
	}
	delete(q.index, key)

	for i := range queueHeads {
		for {
			cur := queueHeads[i].Load()
			if cur <= uint64(pos) {
				break
			}
			if queueHeads[i].CompareAndSwap(cur, cur-1) {
				break
			}
		}
	}

	q.entries = append(q.entries[:pos], q.entries[pos+1:]...)
	for i := pos; i < len(q.entries); i++ {
		q.index[q.entries[i].key] = i
	}
	return true
}

// resetHeads zeroes the cursors. Used when the pool is reloaded.
func resetHeads() {
	for i := range queueHeads {
		queueHeads[i].Store(0)
	}
}
