package relay

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/QueueDeck/QueueDeck/internal/feed"
	"github.com/QueueDeck/QueueDeck/internal/store"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	body := "hello"
	msg := store.Message{ID: "m-1", ConversationID: "c-1", SenderID: "client-1", Body: &body}
	payload, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	in := envelope{
		Origin:  "node-a",
		Table:   store.TableMessages,
		Op:      feed.OpInsert,
		RowID:   "m-1",
		Payload: payload,
		At:      time.Now().UTC().Truncate(time.Second),
	}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}

	var out envelope
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if out.Origin != "node-a" || out.Table != store.TableMessages || out.Op != feed.OpInsert || out.RowID != "m-1" {
		t.Fatalf("envelope fields lost: %+v", out)
	}
	if !out.At.Equal(in.At) {
		t.Fatalf("timestamp lost: %v != %v", out.At, in.At)
	}
}

func TestDecodePayloadRestoresTypes(t *testing.T) {
	body := "hi"
	raw, _ := json.Marshal(store.Message{ID: "m-1", ConversationID: "c-1", Body: &body})

	got := decodePayload(store.TableMessages, raw)
	msg, ok := got.(store.Message)
	if !ok {
		t.Fatalf("expected store.Message, got %T", got)
	}
	if msg.ConversationID != "c-1" || msg.Body == nil || *msg.Body != "hi" {
		t.Fatalf("unexpected decoded message: %+v", msg)
	}

	raw, _ = json.Marshal(store.Conversation{ID: "c-1", Status: store.ConvQueued})
	conv, ok := decodePayload(store.TableConversations, raw).(store.Conversation)
	if !ok || conv.Status != store.ConvQueued {
		t.Fatalf("unexpected decoded conversation: %+v", conv)
	}
}

func TestDecodePayloadEdgeCases(t *testing.T) {
	if got := decodePayload(store.TableMessages, nil); got != nil {
		t.Fatalf("expected nil for empty payload, got %v", got)
	}
	if got := decodePayload("unknown_table", []byte(`{}`)); got != nil {
		t.Fatalf("expected nil for unknown table, got %v", got)
	}
	if got := decodePayload(store.TableMessages, []byte(`not json`)); got != nil {
		t.Fatalf("expected nil for malformed payload, got %v", got)
	}
}
