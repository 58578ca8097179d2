package eventbus

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type batch struct {
	RunID   string
	SimTime int64
}

func TestPublishSubscribe(t *testing.T) {
	bus := NewTyped[batch]()
	ch := bus.Subscribe()
	bus.Publish(batch{RunID: "r1", SimTime: 60})
	v := <-ch
	if v.RunID != "r1" || v.SimTime != 60 {
		t.Fatalf("unexpected batch %+v", v)
	}
	bus.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatalf("expected channel closed after Unsubscribe")
	}
	assert.Equal(t, 0, bus.Subscribers())
}

func TestFullSubscriberDropsAndCounts(t *testing.T) {
	bus := NewTyped[batch](WithBuffer(2))
	slow := bus.Subscribe()
	for i := 0; i < 5; i++ {
		bus.Publish(batch{SimTime: int64(i * 60)})
	}
	assert.EqualValues(t, 3, bus.Dropped())
	assert.Equal(t, int64(0), (<-slow).SimTime)
	assert.Equal(t, int64(60), (<-slow).SimTime)
}

func TestClose(t *testing.T) {
	bus := NewTyped[batch]()
	ch1 := bus.Subscribe()
	ch2 := bus.Subscribe()
	bus.Close()
	bus.Close()
	if _, ok := <-ch1; ok {
		t.Fatalf("expected ch1 closed")
	}
	if _, ok := <-ch2; ok {
		t.Fatalf("expected ch2 closed")
	}
	bus.Publish(batch{RunID: "late"})

	late := bus.Subscribe()
	if _, ok := <-late; ok {
		t.Fatalf("expected subscription on a closed bus to be closed")
	}
}

func TestUnsubscribeAfterClose(t *testing.T) {
	bus := NewTyped[batch]()
	ch := bus.Subscribe()
	bus.Close()
	assert.NotPanics(t, func() { bus.Unsubscribe(ch) })
}

func TestConcurrentPublish(t *testing.T) {
	bus := NewTyped[batch](WithBuffer(100))
	ch := bus.Subscribe()
	var wg sync.WaitGroup
	for run := 0; run < 4; run++ {
		wg.Add(1)
		go func(run int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				bus.Publish(batch{SimTime: int64(i)})
			}
		}(run)
	}
	wg.Wait()
	assert.Len(t, ch, 100)
	assert.Zero(t, bus.Dropped())
}
