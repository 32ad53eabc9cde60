package realtime

import (
	"encoding/json"
	"testing"
)

func TestDecode_AssistantTranscript(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "full chain",
			raw:  `{"type":"response.output_item.done","item":{"content":[{"type":"audio","transcript":"hello there"}]}}`,
			want: "hello there",
		},
		{
			name: "missing item",
			raw:  `{"type":"response.output_item.done"}`,
			want: "",
		},
		{
			name: "empty content",
			raw:  `{"type":"response.output_item.done","item":{"content":[]}}`,
			want: "",
		},
		{
			name: "missing transcript",
			raw:  `{"type":"response.output_item.done","item":{"content":[{"type":"text","text":"x"}]}}`,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			evt, err := Decode([]byte(tt.raw))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if got := evt.AssistantTranscript(); got != tt.want {
				t.Errorf("AssistantTranscript() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecode_FunctionCall(t *testing.T) {
	t.Parallel()

	evt, err := Decode([]byte(`{"type":"response.function_call_arguments.done","call_id":"c1","name":"getPdfInfo","arguments":"{}","extra":42}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if evt.Type != TypeFunctionCallArgumentsDone {
		t.Errorf("Type = %q", evt.Type)
	}
	if evt.CallID != "c1" || evt.Name != "getPdfInfo" || evt.Arguments != "{}" {
		t.Errorf("unexpected event %+v", evt)
	}
}

func TestDecode_Malformed(t *testing.T) {
	t.Parallel()

	if _, err := Decode([]byte(`{"type":`)); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestErrorMessage(t *testing.T) {
	t.Parallel()

	evt := &ServerEvent{Type: TypeError}
	if got := evt.ErrorMessage(); got != "unknown error" {
		t.Errorf("ErrorMessage() = %q", got)
	}
	evt.Error = &ErrorDetail{Message: "rate limited"}
	if got := evt.ErrorMessage(); got != "rate limited" {
		t.Errorf("ErrorMessage() = %q", got)
	}
}

func TestNewFunctionCallOutput(t *testing.T) {
	t.Parallel()

	msg := NewFunctionCallOutput("call-7", json.RawMessage(`{"error":"Function not found"}`))
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got["type"] != TypeConversationItemCreate {
		t.Errorf("type = %v", got["type"])
	}
	item, _ := got["item"].(map[string]any)
	if item["type"] != "function_call_output" {
		t.Errorf("item.type = %v", item["type"])
	}
	if item["call_id"] != "call-7" {
		t.Errorf("item.call_id = %v", item["call_id"])
	}
	if item["output"] != `{"error":"Function not found"}` {
		t.Errorf("item.output = %v", item["output"])
	}
}

func TestNewSessionUpdate(t *testing.T) {
	t.Parallel()

	upd := NewSessionUpdate([]Tool{{Type: "function", Name: "getPdfInfo", Parameters: json.RawMessage(`{}`)}})
	if upd.Type != TypeSessionUpdate {
		t.Errorf("Type = %q", upd.Type)
	}
	if len(upd.Session.Modalities) != 2 || upd.Session.Modalities[0] != "text" || upd.Session.Modalities[1] != "audio" {
		t.Errorf("Modalities = %v", upd.Session.Modalities)
	}
	if len(upd.Session.Tools) != 1 {
		t.Errorf("Tools = %v", upd.Session.Tools)
	}
}
