package scheduler

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harmonydl/internal/hdm/model"
)

func mkItem(batch, item string, idx int) *model.DownloadItem {
	return &model.DownloadItem{BatchID: batch, ItemID: item, Index: idx}
}

func TestQueue_FIFOWithinBatch(t *testing.T) {
	q := New()
	q.Put(mkItem("A", "a1", 0))
	q.Put(mkItem("A", "a2", 1))
	q.Put(mkItem("A", "a3", 2))

	var got []string
	for i := 0; i < 3; i++ {
		it, ok := q.Take()
		require.True(t, ok)
		got = append(got, it.ItemID)
	}
	assert.Equal(t, []string{"a1", "a2", "a3"}, got)
}

func TestQueue_CrossBatchFairness(t *testing.T) {
	q := New()
	for i := 0; i < 3; i++ {
		q.Put(mkItem("A", "A", i))
	}
	for i := 0; i < 3; i++ {
		q.Put(mkItem("B", "B", i))
	}

	var order []string
	for i := 0; i < 6; i++ {
		it, ok := q.Take()
		require.True(t, ok)
		order = append(order, it.BatchID)
	}

	countA, countB := 0, 0
	for _, b := range order[:4] {
		if b == "A" {
			countA++
		} else {
			countB++
		}
	}
	assert.Equal(t, 2, countA)
	assert.Equal(t, 2, countB)
}

func TestQueue_StopDrainsThenEmpty(t *testing.T) {
	q := New()
	q.Put(mkItem("A", "a1", 0))
	q.Stop()

	it, ok := q.Take()
	require.True(t, ok)
	assert.Equal(t, "a1", it.ItemID)

	_, ok = q.Take()
	assert.False(t, ok)
}

func TestQueue_TakeBlocksUntilPut(t *testing.T) {
	q := New()
	var wg sync.WaitGroup
	wg.Add(1)

	var got *model.DownloadItem
	go func() {
		defer wg.Done()
		it, ok := q.Take()
		if ok {
			got = it
		}
	}()

	q.Put(mkItem("A", "a1", 0))
	wg.Wait()
	require.NotNil(t, got)
	assert.Equal(t, "a1", got.ItemID)
}

func TestQueue_StopWakesBlockedTake(t *testing.T) {
	q := New()
	var wg sync.WaitGroup
	wg.Add(1)

	var ok bool
	go func() {
		defer wg.Done()
		_, ok = q.Take()
	}()

	q.Stop()
	wg.Wait()
	assert.False(t, ok)
}
