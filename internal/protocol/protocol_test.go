package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeAction(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Action
		wantErr error
	}{
		{name: "ptt down", input: `{"action":"PTT_DOWN"}`, want: ActionPTTDown},
		{name: "ptt up", input: `{"action":"PTT_UP"}`, want: ActionPTTUp},
		{name: "cancel", input: `{"action":"CANCEL"}`, want: ActionCancel},
		{name: "extra fields ignored", input: `{"action":"CANCEL","id":7}`, want: ActionCancel},
		{name: "not json", input: `PTT_DOWN`, wantErr: ErrMalformedMessage},
		{name: "array", input: `["PTT_DOWN"]`, wantErr: ErrMalformedMessage},
		{name: "missing action", input: `{"event":"LISTENING"}`, wantErr: ErrMalformedMessage},
		{name: "non string action", input: `{"action":1}`, wantErr: ErrMalformedMessage},
		{name: "unknown action", input: `{"action":"PAUSE"}`, want: Action("PAUSE"), wantErr: ErrUnknownAction},
		{name: "lowercase is unknown", input: `{"action":"ptt_down"}`, want: Action("ptt_down"), wantErr: ErrUnknownAction},
		{name: "padded is unknown", input: `{"action":" PTT_DOWN "}`, want: Action(" PTT_DOWN "), wantErr: ErrUnknownAction},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeAction([]byte(tc.input))
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				require.Equal(t, tc.want, got)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestEventWireShapes(t *testing.T) {
	tests := []struct {
		event Event
		want  string
	}{
		{event: Listening(), want: `{"event":"LISTENING"}`},
		{event: Processing(), want: `{"event":"PROCESSING"}`},
		{event: FinalPrompt("Fix the bug in authentication."), want: `{"event":"FINAL_PROMPT","text":"Fix the bug in authentication."}`},
		{event: FinalPrompt(""), want: `{"event":"FINAL_PROMPT","text":""}`},
		{event: Error("No speech detected"), want: `{"event":"ERROR","message":"No speech detected"}`},
	}

	for _, tc := range tests {
		t.Run(tc.event.String(), func(t *testing.T) {
			data, err := json.Marshal(tc.event)
			require.NoError(t, err)
			require.JSONEq(t, tc.want, string(data))
		})
	}
}

func TestEventMarshalRejectsUnknownKind(t *testing.T) {
	_, err := json.Marshal(Event{Kind: "BOGUS"})
	require.Error(t, err)
}

func TestEventUnmarshal(t *testing.T) {
	var event Event
	require.NoError(t, json.Unmarshal([]byte(`{"event":"ERROR","message":"boom"}`), &event))
	require.Equal(t, Error("boom"), event)
}
