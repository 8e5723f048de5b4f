package delivery

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/hooklinehq/hookline/internal/queue"
)

func TestHandleJob_DecodesPayloadAndRunsFanout(t *testing.T) {
	store := &fakeSubscriptionStore{}
	sender := &fakeSender{}
	p := New(store, sender)

	payload, _ := json.Marshal(testQueuedEvent())
	err := p.HandleJob(context.Background(), queue.ClaimedJob{
		ID:      "event_0123456789abcdef01234567",
		Name:    "event:order.created",
		Payload: payload,
		Attempt: 1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHandleJob_BadPayloadFailsJob(t *testing.T) {
	p := New(&fakeSubscriptionStore{}, &fakeSender{})

	err := p.HandleJob(context.Background(), queue.ClaimedJob{
		ID:      "event_x",
		Payload: []byte("{not json"),
	})
	if err == nil {
		t.Fatal("expected unmarshal error")
	}
}
