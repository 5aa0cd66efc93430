package eventq

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/October-1030/AAOKX-sub001/internal/domain"
)

func ev(priority uint8) domain.Event {
	return domain.Event{Type: domain.EventQuoteUpdated, Priority: priority}
}

func priorities(evs []domain.Event) []uint8 {
	out := make([]uint8, len(evs))
	for i, e := range evs {
		out[i] = e.Priority
	}
	return out
}

func TestDrainPriorityThenFIFO(t *testing.T) {
	q := New()
	seqs := make([]uint64, 0, 4)
	for _, p := range []uint8{3, 1, 2, 1} {
		seqs = append(seqs, q.Enqueue(ev(p)))
	}
	assert.Equal(t, []uint64{1, 2, 3, 4}, seqs)

	got := q.DrainBatch(10)
	require.Len(t, got, 4)
	assert.Equal(t, []uint8{1, 1, 2, 3}, priorities(got))
	assert.Equal(t, uint64(2), got[0].Sequence)
	assert.Equal(t, uint64(4), got[1].Sequence)
	assert.Equal(t, 0, q.Len())
}

func TestDrainBatchBounded(t *testing.T) {
	q := New()
	for _, p := range []uint8{5, 0, 1, 5, 0} {
		q.Enqueue(ev(p))
	}

	first := q.DrainBatch(2)
	assert.Equal(t, []uint8{0, 0}, priorities(first))
	assert.Equal(t, 3, q.Len())

	// Later enqueues still sort ahead of older lower-urgency events.
	q.Enqueue(ev(0))
	rest := q.DrainBatch(10)
	assert.Equal(t, []uint8{0, 1, 5, 5}, priorities(rest))
	assert.Less(t, rest[2].Sequence, rest[3].Sequence)
}

func TestDrainEmptyNeverBlocks(t *testing.T) {
	q := New()
	assert.Empty(t, q.DrainBatch(10))
	q.Enqueue(ev(1))
	assert.Empty(t, q.DrainBatch(0))
	assert.Equal(t, 1, q.Len())
}

func TestConcurrentEnqueueAssignsUniqueSequences(t *testing.T) {
	q := New()
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				q.Enqueue(ev(uint8(i % 3)))
			}
		}()
	}
	wg.Wait()

	got := q.DrainBatch(2000)
	require.Len(t, got, 1000)
	seen := make(map[uint64]bool, len(got))
	for i, e := range got {
		assert.False(t, seen[e.Sequence])
		seen[e.Sequence] = true
		if i > 0 {
			prev := got[i-1]
			ordered := prev.Priority < e.Priority || (prev.Priority == e.Priority && prev.Sequence < e.Sequence)
			assert.True(t, ordered)
		}
	}
}
