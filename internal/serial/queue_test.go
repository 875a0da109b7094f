package serial

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueOrder(t *testing.T) {
	q := New("test")
	var got []int
	for i := 0; i < 5; i++ {
		i := i
		q.Push(func() { got = append(got, i) })
	}
	assert.Equal(t, 5, q.Len())

	q.Flush()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
	assert.Equal(t, 0, q.Len())
}

func TestQueueNoReentry(t *testing.T) {
	q := New("test")
	var got []string

	q.Do(func() {
		got = append(got, "outer start")
		q.Do(func() { got = append(got, "inner") })
		got = append(got, "outer end")
	})

	assert.Equal(t, []string{"outer start", "outer end", "inner"}, got)
}

func TestQueueRecoversPanic(t *testing.T) {
	q := New("test")
	ran := false

	q.Push(func() { panic("boom") })
	q.Push(func() { ran = true })
	require.NotPanics(t, q.Flush)
	assert.True(t, ran)

	// The queue is usable after a panic.
	ran = false
	q.Do(func() { ran = true })
	assert.True(t, ran)
}

func TestQueueConcurrent(t *testing.T) {
	q := New("test")
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		overlap bool
		count   int
	)

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Do(func() {
				mu.Lock()
				active++
				if active > 1 {
					overlap = true
				}
				mu.Unlock()

				count++

				mu.Lock()
				active--
				mu.Unlock()
			})
		}()
	}
	wg.Wait()
	q.Flush()

	assert.False(t, overlap)
	assert.Equal(t, 50, count)
}
