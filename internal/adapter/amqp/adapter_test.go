package amqp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/webitel/im-sync-engine/internal/syncengine"
)

func TestAdapterCreate_Publishes(t *testing.T) {
	pubsub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer pubsub.Close()

	a := NewWithPublisher(pubsub, "im-sync", nil)

	msgs, err := pubsub.Subscribe(context.Background(), "im-sync.contacts")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	outcome, err := a.Create(context.Background(), "contacts", map[string]any{"name": "a"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Kind != syncengine.OutcomeOK {
		t.Fatalf("expected OutcomeOK, got %v", outcome.Kind)
	}

	select {
	case msg := <-msgs:
		var out outboundMessage
		if err := json.Unmarshal(msg.Payload, &out); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if out.Op != "create" || out.Kind != "contacts" {
			t.Fatalf("unexpected envelope: %+v", out)
		}
		msg.Ack()
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published message")
	}
}

func TestAdapterFetchUpdates_Unsupported(t *testing.T) {
	pubsub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer pubsub.Close()

	a := NewWithPublisher(pubsub, "im-sync", nil)
	if _, err := a.FetchUpdates(context.Background(), "contacts", syncengine.FetchOptions{}); err == nil {
		t.Fatal("expected an error for fetch_updates over a publish-only transport")
	}
}
