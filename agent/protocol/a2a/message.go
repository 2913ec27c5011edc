package a2a

import (
	"encoding/json"
	"fmt"
	"strings"
)

// JSON-RPC 方法名
const (
	MethodSendMessage = "SendMessage"
	MethodLegacySend  = "message/send"
)

type rpcRequest struct {
	JSONRPC string     `json:"jsonrpc"`
	ID      string     `json:"id"`
	Method  string     `json:"method"`
	Params  sendParams `json:"params"`
}

type sendParams struct {
	Message wireMessage `json:"message"`
}

type wireMessage struct {
	Role             string     `json:"role"`
	Parts            []wirePart `json:"parts"`
	MessageID        string     `json:"messageId"`
	ContextID        string     `json:"contextId,omitempty"`
	ReferenceTaskIDs []string   `json:"referenceTaskIds,omitempty"`
}

// wirePart 标准格式只有 text；旧格式带 kind.
type wirePart struct {
	Kind string `json:"kind,omitempty"`
	Text string `json:"text"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// callIDs 一次逻辑调用的全部标识，重试与降级都复用同一组.
type callIDs struct {
	RequestID string
	RPCID     string
	MessageID string
}

func buildRequest(method string, ids callIDs, req Request) rpcRequest {
	part := wirePart{Text: req.Prompt}
	if method == MethodLegacySend {
		part.Kind = "text"
	}
	return rpcRequest{
		JSONRPC: "2.0",
		ID:      ids.RPCID,
		Method:  method,
		Params: sendParams{Message: wireMessage{
			Role:             "user",
			Parts:            []wirePart{part},
			MessageID:        ids.MessageID,
			ContextID:        req.ContextID,
			ReferenceTaskIDs: req.ReferenceTaskIDs,
		}},
	}
}

// 响应结构：标准与旧格式的并集
type resultPart struct {
	Kind string          `json:"kind,omitempty"`
	Type string          `json:"type,omitempty"`
	Text *string         `json:"text,omitempty"`
	File *filePart       `json:"file,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

type filePart struct {
	Name string `json:"name"`
}

type resultMessage struct {
	Parts []resultPart `json:"parts"`
}

type resultStatus struct {
	State   string         `json:"state"`
	Message *resultMessage `json:"message,omitempty"`
}

type resultTask struct {
	ID     string        `json:"id"`
	Status *resultStatus `json:"status,omitempty"`
}

type resultArtifact struct {
	Name  string       `json:"name,omitempty"`
	Parts []resultPart `json:"parts"`
}

type rpcResult struct {
	ID        string           `json:"id,omitempty"`
	ContextID string           `json:"contextId,omitempty"`
	SessionID string           `json:"sessionId,omitempty"`
	Message   *resultMessage   `json:"message,omitempty"`
	Task      *resultTask      `json:"task,omitempty"`
	Artifacts []resultArtifact `json:"artifacts,omitempty"`
	Status    *resultStatus    `json:"status,omitempty"`
}

func (p resultPart) isText() bool {
	if p.Text != nil && p.Kind == "" && p.Type == "" {
		return true
	}
	return p.Kind == "text" || p.Type == "text"
}

func (p resultPart) isData() bool {
	return p.Kind == "data" || p.Type == "data" || len(p.Data) > 0
}

// textFromParts 拼接文本；file 与 data 部分渲染为占位符.
func textFromParts(parts []resultPart) string {
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		switch {
		case p.Text != nil:
			if *p.Text != "" {
				texts = append(texts, *p.Text)
			}
		case p.File != nil:
			name := p.File.Name
			if name == "" {
				name = "unknown"
			}
			texts = append(texts, fmt.Sprintf("[File: %s]", name))
		case len(p.Data) > 0:
			texts = append(texts, "[Data object]")
		}
	}
	return strings.Join(texts, " ")
}

// parseResult 按优先级解析：result.message -> result.task.status.message
// -> result.artifacts -> result.status.message.
func parseResult(raw json.RawMessage) (*Response, error) {
	var r rpcResult
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
	}

	out := &Response{
		State:     StateCompleted,
		TaskID:    r.ID,
		ContextID: r.ContextID,
	}
	if out.ContextID == "" {
		out.ContextID = r.SessionID
	}

	if r.Message != nil {
		out.Content = textFromParts(r.Message.Parts)
	}

	if out.Content == "" && r.Task != nil {
		if r.Task.ID != "" {
			out.TaskID = r.Task.ID
		}
		if st := r.Task.Status; st != nil {
			if st.State != "" {
				out.State = st.State
			}
			if st.Message != nil {
				out.Content = textFromParts(st.Message.Parts)
			}
		}
	}

	if out.Content == "" {
		for _, a := range r.Artifacts {
			for _, p := range a.Parts {
				switch {
				case p.isText():
					text := ""
					if p.Text != nil {
						text = *p.Text
					}
					if text == "" {
						continue
					}
					if out.Content == "" {
						out.Content = text
					}
					out.Artifacts = append(out.Artifacts, Artifact{Kind: ArtifactKindText, Name: a.Name, Text: text})
				case p.isData():
					data := p.Data
					if len(data) == 0 {
						data = json.RawMessage("{}")
					}
					out.Artifacts = append(out.Artifacts, Artifact{Kind: ArtifactKindData, Name: a.Name, Data: data})
				}
			}
		}
	}

	if out.Content == "" && r.Status != nil {
		if r.Status.State != "" {
			out.State = r.Status.State
		}
		if r.Status.Message != nil {
			out.Content = textFromParts(r.Status.Message.Parts)
		}
	}

	if out.Content == "" {
		out.Content = "Task completed."
	}
	return out, nil
}
