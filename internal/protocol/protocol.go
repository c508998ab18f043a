// Package protocol defines the JSON messages exchanged with push-to-talk clients.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Action is one inbound client command.
type Action string

const (
	ActionPTTDown Action = "PTT_DOWN"
	ActionPTTUp   Action = "PTT_UP"
	ActionCancel  Action = "CANCEL"
)

// EventKind names one outbound message shape.
type EventKind string

const (
	EventListening   EventKind = "LISTENING"
	EventProcessing  EventKind = "PROCESSING"
	EventFinalPrompt EventKind = "FINAL_PROMPT"
	EventError       EventKind = "ERROR"
)

var (
	// ErrMalformedMessage indicates an inbound payload that is not a JSON action object.
	ErrMalformedMessage = errors.New("malformed message")
	// ErrUnknownAction indicates a well-formed payload carrying an unrecognized action.
	ErrUnknownAction = errors.New("unknown action")
)

type inbound struct {
	Action *string `json:"action"`
}

// DecodeAction parses one inbound text frame.
func DecodeAction(data []byte) (Action, error) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if msg.Action == nil {
		return "", fmt.Errorf("%w: missing action field", ErrMalformedMessage)
	}

	action := Action(*msg.Action)
	switch action {
	case ActionPTTDown, ActionPTTUp, ActionCancel:
		return action, nil
	default:
		return action, fmt.Errorf("%w: %q", ErrUnknownAction, *msg.Action)
	}
}

// Event is one outbound message. Text is only encoded for FINAL_PROMPT and
// Message only for ERROR.
type Event struct {
	Kind    EventKind
	Text    string
	Message string
}

func Listening() Event  { return Event{Kind: EventListening} }
func Processing() Event { return Event{Kind: EventProcessing} }

func FinalPrompt(text string) Event {
	return Event{Kind: EventFinalPrompt, Text: text}
}

func Error(message string) Event {
	return Event{Kind: EventError, Message: message}
}

// MarshalJSON encodes the event with its literal wire field names.
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Kind {
	case EventFinalPrompt:
		return json.Marshal(struct {
			Event EventKind `json:"event"`
			Text  string    `json:"text"`
		}{Event: e.Kind, Text: e.Text})
	case EventError:
		return json.Marshal(struct {
			Event   EventKind `json:"event"`
			Message string    `json:"message"`
		}{Event: e.Kind, Message: e.Message})
	case EventListening, EventProcessing:
		return json.Marshal(struct {
			Event EventKind `json:"event"`
		}{Event: e.Kind})
	default:
		return nil, fmt.Errorf("unknown event kind %q", e.Kind)
	}
}

// UnmarshalJSON decodes an outbound event; clients and tests use it.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw struct {
		Event   EventKind `json:"event"`
		Text    string    `json:"text"`
		Message string    `json:"message"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = Event{Kind: raw.Event, Text: raw.Text, Message: raw.Message}
	return nil
}

func (e Event) String() string {
	switch e.Kind {
	case EventFinalPrompt:
		return fmt.Sprintf("%s(%q)", e.Kind, e.Text)
	case EventError:
		return fmt.Sprintf("%s(%q)", e.Kind, e.Message)
	default:
		return string(e.Kind)
	}
}
