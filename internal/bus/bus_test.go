package bus

import (
	"testing"
	"time"

	"github.com/nexuscore/agentrt/pkg/models"
)

func TestPublishDeliversInOrder(t *testing.T) {
	b := New(4)
	sub := b.Subscribe(models.TopicAgentReady)

	for i := 0; i < 3; i++ {
		b.Publish(models.Event{Topic: models.TopicAgentReady, Payload: i})
	}

	for i := 0; i < 3; i++ {
		select {
		case ev := <-sub.C:
			if ev.Payload.(int) != i {
				t.Fatalf("expected payload %d, got %v", i, ev.Payload)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestPublishDropsOldestWhenFull(t *testing.T) {
	b := New(2)
	sub := b.Subscribe(models.TopicSkillExecuted)

	for i := 0; i < 5; i++ {
		b.Publish(models.Event{Topic: models.TopicSkillExecuted, Payload: i})
	}

	// queue size 2: the last two published (3, 4) should survive
	first := <-sub.C
	second := <-sub.C
	if first.Payload.(int) != 3 || second.Payload.(int) != 4 {
		t.Fatalf("expected [3 4], got [%v %v]", first.Payload, second.Payload)
	}
	if dropped := sub.Dropped(); dropped != 3 {
		t.Fatalf("expected 3 dropped events, got %d", dropped)
	}
}

func TestSubscribersAreIndependent(t *testing.T) {
	b := New(1)
	slow := b.Subscribe(models.TopicAgentExit)
	fast := b.Subscribe(models.TopicAgentExit)

	b.Publish(models.Event{Topic: models.TopicAgentExit, Payload: "a"})
	<-fast.C // fast subscriber drains immediately

	b.Publish(models.Event{Topic: models.TopicAgentExit, Payload: "b"})

	// slow subscriber never drained, queue size 1: should now hold "b" only
	ev := <-slow.C
	if ev.Payload.(string) != "b" {
		t.Fatalf("expected slow subscriber's surviving event to be 'b', got %v", ev.Payload)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New(4)
	sub := b.Subscribe(models.TopicMessageInbound)
	sub.Unsubscribe()

	_, ok := <-sub.C
	if ok {
		t.Fatal("expected channel to be closed after Unsubscribe")
	}
}
