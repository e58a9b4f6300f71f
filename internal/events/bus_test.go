package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishDeliversToSubscriber(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe("deployment:1")
	defer sub.Unsubscribe()

	bus.Publish("deployment:1", "building")

	select {
	case evt := <-sub.C:
		assert.Equal(t, "deployment:1", evt.Topic)
		assert.Equal(t, "building", evt.Data)
		assert.Equal(t, uint64(1), evt.Seq)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBus_PublishToTopicWithNoSubscribersIsANoOp(t *testing.T) {
	bus := NewBus()
	assert.NotPanics(t, func() { bus.Publish("app:1", "running") })
}

func TestBus_SequenceNumbersAreOrderedPerTopic(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe("deployment:7")
	defer sub.Unsubscribe()

	bus.Publish("deployment:7", "cloning")
	bus.Publish("deployment:7", "building")
	bus.Publish("deployment:7", "running")

	var seqs []uint64
	for i := 0; i < 3; i++ {
		evt := <-sub.C
		seqs = append(seqs, evt.Seq)
	}
	assert.Equal(t, []uint64{1, 2, 3}, seqs)
}

func TestBus_OverflowDropsOldestAndSetsLagging(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe("container:abc:logs")
	defer sub.Unsubscribe()

	for i := 0; i < inboxCapacity+10; i++ {
		bus.Publish("container:abc:logs", i)
	}

	assert.True(t, sub.Lagging())
	assert.False(t, sub.Lagging(), "Lagging should clear after being read")
	assert.LessOrEqual(t, len(sub.C), inboxCapacity)
}

func TestBus_UnsubscribeStopsFurtherDelivery(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe("server:1")
	sub.Unsubscribe()

	require.Equal(t, 0, bus.SubscriberCount("server:1"))
	assert.NotPanics(t, func() { bus.Publish("server:1", "online") })
}

func TestBus_IndependentSubscribersDoNotBlockEachOther(t *testing.T) {
	bus := NewBus()
	slow := bus.Subscribe("app:1")
	fast := bus.Subscribe("app:1")
	defer slow.Unsubscribe()
	defer fast.Unsubscribe()

	for i := 0; i < inboxCapacity+5; i++ {
		bus.Publish("app:1", i)
	}

	select {
	case <-fast.C:
	case <-time.After(time.Second):
		t.Fatal("fast subscriber should have received events despite slow subscriber overflowing")
	}
}
