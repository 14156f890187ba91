package scan

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageKindWorkItem tags the only message schema carried on the work queue.
// Consumers reject payloads with any other tag instead of guessing at the
// body shape.
const MessageKindWorkItem = "work_item"

// ItemMessage is the typed wire envelope for one queued work item.
type ItemMessage struct {
	Kind string   `json:"kind"`
	Item WorkItem `json:"item"`
}

// EncodeItemMessage marshals a work item into its queue envelope.
func EncodeItemMessage(item WorkItem) ([]byte, error) {
	data, err := json.Marshal(ItemMessage{Kind: MessageKindWorkItem, Item: item})
	if err != nil {
		return nil, fmt.Errorf("marshal item message: %w", err)
	}
	return data, nil
}

// DecodeItemMessage unmarshals and validates a queue payload at the consumer
// boundary. Malformed payloads are rejected here so the worker loop can route
// them to the dead-letter path rather than crash.
func DecodeItemMessage(data []byte) (WorkItem, error) {
	var msg ItemMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return WorkItem{}, fmt.Errorf("unmarshal item message: %w", err)
	}
	if msg.Kind != MessageKindWorkItem {
		return WorkItem{}, fmt.Errorf("unexpected message kind %q", msg.Kind)
	}
	if err := msg.Item.Validate(); err != nil {
		return WorkItem{}, err
	}
	return msg.Item, nil
}

// Validate performs coarse validation on WorkItem payloads.
func (i WorkItem) Validate() error {
	if i.ItemID == "" {
		return errors.New("item id is required")
	}
	if i.SessionID == "" {
		return errors.New("session id is required")
	}
	if i.DocRef == "" {
		return errors.New("document reference is required")
	}
	return nil
}
