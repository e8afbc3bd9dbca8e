package services

import (
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/adedejiosvaldo/safetrace/tripguard/internal/logging"
)

func TestSerialWorker_RunsJobsInOrder(t *testing.T) {
	w := newSerialWorker("test", logging.NewWithWriter(io.Discard, "ERROR"))
	defer w.close()

	var mu sync.Mutex
	var order []int
	for i := 0; i < 20; i++ {
		i := i
		assert.True(t, w.submit(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}))
	}
	w.flush()

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, order, 20)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestSerialWorker_SurvivesPanickingJob(t *testing.T) {
	w := newSerialWorker("test", logging.NewWithWriter(io.Discard, "ERROR"))
	defer w.close()

	ran := false
	w.submit(func() { panic("boom") })
	w.submit(func() { ran = true })
	w.flush()

	assert.True(t, ran)
}

func TestSerialWorker_CloseDrainsAndRejects(t *testing.T) {
	w := newSerialWorker("test", logging.NewWithWriter(io.Discard, "ERROR"))

	ran := 0
	for i := 0; i < 3; i++ {
		w.submit(func() { ran++ })
	}
	w.close()
	w.close()

	assert.Equal(t, 3, ran)
	assert.False(t, w.submit(func() { ran++ }))
	w.flush()
	assert.Equal(t, 3, ran)
}
