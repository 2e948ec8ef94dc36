// File: internal/concurrency/lock_free_queue_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskQueueKeepsPerProducerOrder(t *testing.T) {
	const producers, each = 8, 500
	q := NewTaskQueue()
	var (
		mu  sync.Mutex
		got = make(map[int][]int)
		wg  sync.WaitGroup
	)
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				q.Push(func() {
					mu.Lock()
					got[p] = append(got[p], i)
					mu.Unlock()
				})
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, producers*each, q.Len())

	tasks := q.Drain(nil)
	require.Len(t, tasks, producers*each)
	assert.Zero(t, q.Len())
	for _, task := range tasks {
		task()
	}
	for p := 0; p < producers; p++ {
		require.Len(t, got[p], each)
		for i, v := range got[p] {
			require.Equal(t, i, v)
		}
	}
}

func TestGoroutineIDDistinguishesGoroutines(t *testing.T) {
	self := GoroutineID()
	require.Positive(t, self)
	assert.Equal(t, self, GoroutineID())

	other := make(chan int64)
	go func() { other <- GoroutineID() }()
	id := <-other
	assert.Positive(t, id)
	assert.NotEqual(t, self, id)
}
