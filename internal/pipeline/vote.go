package pipeline

// VoteBuffer damps per-frame recognition noise: it accumulates a fixed-size
// window of matched student IDs and, once full, emits the majority identity
// and clears itself in the same step. The buffer is owned by a single stream
// and touched only from its processing goroutine.
type VoteBuffer struct {
	capacity int
	ids      []int64
}

// DefaultVoteWindow is the number of consistent observations required before
// a match is treated as a confirmed sighting.
const DefaultVoteWindow = 5

// NewVoteBuffer creates a vote buffer with the given window size.
func NewVoteBuffer(capacity int) *VoteBuffer {
	if capacity <= 0 {
		capacity = DefaultVoteWindow
	}
	return &VoteBuffer{
		capacity: capacity,
		ids:      make([]int64, 0, capacity),
	}
}

// Push appends one matched identity. When the window fills it returns the
// majority identity and true, leaving the buffer empty; otherwise it returns
// 0 and false. The fill-vote-clear step is atomic from the caller's view:
// the buffer is never observed holding a full window.
func (b *VoteBuffer) Push(id int64) (int64, bool) {
	b.ids = append(b.ids, id)
	if len(b.ids) < b.capacity {
		return 0, false
	}

	winner := majority(b.ids)
	b.ids = b.ids[:0]
	return winner, true
}

// Len returns the current window fill.
func (b *VoteBuffer) Len() int { return len(b.ids) }

// Cap returns the window size.
func (b *VoteBuffer) Cap() int { return b.capacity }

// majority returns the most frequent ID; ties break toward the ID seen
// earliest in the window.
func majority(ids []int64) int64 {
	counts := make(map[int64]int, len(ids))
	firstSeen := make(map[int64]int, len(ids))
	for i, id := range ids {
		if _, ok := firstSeen[id]; !ok {
			firstSeen[id] = i
		}
		counts[id]++
	}

	best := ids[0]
	for id, count := range counts {
		if count > counts[best] || (count == counts[best] && firstSeen[id] < firstSeen[best]) {
			best = id
		}
	}
	return best
}
