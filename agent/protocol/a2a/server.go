package a2a

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ServerConfig A2A 代理端配置.
type ServerConfig struct {
	Card AgentCard
	// LegacyOnly 只接受 message/send，对 SendMessage 返回 -32601
	LegacyOnly     bool
	AuthToken      string
	RequestTimeout time.Duration
}

// TaskRequest 代理端收到的一次任务.
type TaskRequest struct {
	Method           string
	RequestID        string
	UserID           string
	MessageID        string
	ContextID        string
	ReferenceTaskIDs []string
	Text             string
}

// TaskReply 任务处理结果.
type TaskReply struct {
	Text      string
	State     string
	Artifacts []Artifact
}

// TaskHandler 处理任务；返回错误时以 JSON-RPC 内部错误应答.
type TaskHandler func(ctx context.Context, req TaskRequest) (*TaskReply, error)

// EchoHandler 原样返回提示文本.
func EchoHandler(_ context.Context, req TaskRequest) (*TaskReply, error) {
	return &TaskReply{Text: req.Text}, nil
}

// Server 最小 A2A 代理端，供联调和测试使用.
type Server struct {
	config  ServerConfig
	handler TaskHandler
	logger  *zap.Logger
}

// NewServer 创建代理端.
func NewServer(config ServerConfig, handler TaskHandler, logger *zap.Logger) *Server {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 30 * time.Second
	}
	if handler == nil {
		handler = EchoHandler
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		config:  config,
		handler: handler,
		logger:  logger.With(zap.String("component", "a2a_server")),
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.config.AuthToken != "" && !s.authenticate(r) {
		s.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	path := r.URL.Path
	switch {
	case r.Method == http.MethodGet && (path == cardPaths[0] || path == cardPaths[1] || path == cardPaths[2]):
		s.writeJSON(w, http.StatusOK, s.config.Card)
	case r.Method == http.MethodGet && path == "/health":
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case r.Method == http.MethodPost && path == "/tasks/send":
		s.handleSend(w, r)
	default:
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("endpoint not found: %s %s", r.Method, path)})
	}
}

func (s *Server) authenticate(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.TrimPrefix(auth, "Bearer ") == s.config.AuthToken
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxResponseBytes))
	if err != nil {
		s.writeRPCError(w, nil, codeParseError, err.Error())
		return
	}
	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeRPCError(w, nil, codeParseError, "parse error")
		return
	}

	switch req.Method {
	case MethodSendMessage:
		if s.config.LegacyOnly {
			s.writeRPCError(w, req.ID, codeMethodNotFound, "method not found")
			return
		}
	case MethodLegacySend:
	default:
		s.writeRPCError(w, req.ID, codeMethodNotFound, "method not found")
		return
	}

	msg := req.Params.Message
	texts := make([]string, 0, len(msg.Parts))
	for _, p := range msg.Parts {
		texts = append(texts, p.Text)
	}
	if len(texts) == 0 {
		s.writeRPCError(w, req.ID, codeInvalidRequest, "message has no parts")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
	defer cancel()

	reply, err := s.handler(ctx, TaskRequest{
		Method:           req.Method,
		RequestID:        r.Header.Get("X-Request-Id"),
		UserID:           r.Header.Get("X-User-Id"),
		MessageID:        msg.MessageID,
		ContextID:        msg.ContextID,
		ReferenceTaskIDs: msg.ReferenceTaskIDs,
		Text:             strings.Join(texts, " "),
	})
	if err != nil {
		s.logger.Warn("task handler failed", zap.String("method", req.Method), zap.Error(err))
		s.writeRPCError(w, req.ID, codeInternalError, err.Error())
		return
	}
	if reply == nil {
		reply = &TaskReply{}
	}

	result, err := json.Marshal(s.buildResult(req.Method, msg.ContextID, reply))
	if err != nil {
		s.writeRPCError(w, req.ID, codeInternalError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: result})
}

// buildResult 标准方法用 message，旧方法用 status.message；产物单独列出.
func (s *Server) buildResult(method, contextID string, reply *TaskReply) map[string]any {
	state := reply.State
	if state == "" {
		state = StateCompleted
	}
	textPart := func(text string) map[string]any {
		p := map[string]any{"text": text}
		if method == MethodLegacySend {
			p["kind"] = "text"
		}
		return p
	}

	result := map[string]any{"id": uuid.NewString()}
	if contextID != "" {
		result["contextId"] = contextID
	}

	if len(reply.Artifacts) > 0 {
		artifacts := make([]map[string]any, 0, len(reply.Artifacts))
		for _, a := range reply.Artifacts {
			part := map[string]any{"kind": string(a.Kind)}
			if a.Kind == ArtifactKindData {
				part["data"] = a.Data
			} else {
				part["text"] = a.Text
			}
			artifacts = append(artifacts, map[string]any{"name": a.Name, "parts": []any{part}})
		}
		result["artifacts"] = artifacts
		result["status"] = map[string]any{"state": state}
		return result
	}

	message := map[string]any{"role": "agent", "parts": []any{textPart(reply.Text)}}
	if method == MethodSendMessage && state == StateCompleted {
		result["message"] = message
		return result
	}
	result["status"] = map[string]any{"state": state, "message": message}
	return result
}

func (s *Server) writeRPCError(w http.ResponseWriter, id any, code int, msg string) {
	s.writeJSON(w, http.StatusOK, rpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &rpcError{Code: code, Message: msg},
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to write JSON response", zap.Error(err))
	}
}
