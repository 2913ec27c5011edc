package a2a

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRequest(t *testing.T) {
	ids := callIDs{RequestID: "req", RPCID: "rpc", MessageID: "msg"}
	req := Request{Prompt: "hello", ContextID: "ctx", ReferenceTaskIDs: []string{"t1"}}

	modern, err := json.Marshal(buildRequest(MethodSendMessage, ids, req))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"jsonrpc": "2.0", "id": "rpc", "method": "SendMessage",
		"params": {"message": {"role": "user", "parts": [{"text": "hello"}], "messageId": "msg", "contextId": "ctx", "referenceTaskIds": ["t1"]}}
	}`, string(modern))

	legacy, err := json.Marshal(buildRequest(MethodLegacySend, ids, Request{Prompt: "hello"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"jsonrpc": "2.0", "id": "rpc", "method": "message/send",
		"params": {"message": {"role": "user", "parts": [{"kind": "text", "text": "hello"}], "messageId": "msg"}}
	}`, string(legacy))
}

func TestParseResult_Priority(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		content string
		state   string
		taskID  string
	}{
		{
			name:    "message wins",
			raw:     `{"id":"t1","message":{"parts":[{"text":"from message"}]},"status":{"state":"working","message":{"parts":[{"text":"from status"}]}}}`,
			content: "from message",
			state:   StateCompleted,
			taskID:  "t1",
		},
		{
			name:    "task status",
			raw:     `{"task":{"id":"t2","status":{"state":"completed","message":{"parts":[{"kind":"text","text":"from task"}]}}}}`,
			content: "from task",
			state:   StateCompleted,
			taskID:  "t2",
		},
		{
			name:    "artifacts before status",
			raw:     `{"artifacts":[{"name":"a","parts":[{"type":"text","text":"from artifact"}]}],"status":{"state":"completed","message":{"parts":[{"text":"from status"}]}}}`,
			content: "from artifact",
			state:   StateCompleted,
		},
		{
			name:    "legacy status",
			raw:     `{"id":"t3","status":{"state":"failed","message":{"parts":[{"kind":"text","text":"boom"}]}}}`,
			content: "boom",
			state:   StateFailed,
			taskID:  "t3",
		},
		{
			name:    "file and data parts",
			raw:     `{"message":{"parts":[{"kind":"text","text":"see"},{"kind":"file","file":{"name":"report.pdf"}},{"kind":"data","data":{"k":1}}]}}`,
			content: "see [File: report.pdf] [Data object]",
			state:   StateCompleted,
		},
		{
			name:    "empty result",
			raw:     `{}`,
			content: "Task completed.",
			state:   StateCompleted,
		},
		{
			name:    "null result",
			raw:     `null`,
			content: "Task completed.",
			state:   StateCompleted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := parseResult(json.RawMessage(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.content, out.Content)
			assert.Equal(t, tt.state, out.State)
			assert.Equal(t, tt.taskID, out.TaskID)
		})
	}
}

func TestParseResult_Artifacts(t *testing.T) {
	raw := `{"artifacts":[
		{"name":"summary","parts":[{"kind":"text","text":"first"},{"kind":"text","text":"second"}]},
		{"name":"table","parts":[{"kind":"data","data":{"rows":2}}]}
	]}`
	out, err := parseResult(json.RawMessage(raw))
	require.NoError(t, err)
	assert.Equal(t, "first", out.Content)
	require.Len(t, out.Artifacts, 3)
	assert.Equal(t, ArtifactKindText, out.Artifacts[1].Kind)
	assert.Equal(t, "second", out.Artifacts[1].Text)
	assert.Equal(t, ArtifactKindData, out.Artifacts[2].Kind)
	assert.JSONEq(t, `{"rows":2}`, string(out.Artifacts[2].Data))
}

func TestParseResult_SessionID(t *testing.T) {
	out, err := parseResult(json.RawMessage(`{"sessionId":"s-1","message":{"parts":[{"text":"x"}]}}`))
	require.NoError(t, err)
	assert.Equal(t, "s-1", out.ContextID)
}

func TestParseResult_Invalid(t *testing.T) {
	_, err := parseResult(json.RawMessage(`[1,2]`))
	assert.ErrorIs(t, err, ErrInvalidMessage)
}
