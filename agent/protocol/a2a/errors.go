package a2a

import "errors"

// 代理卡验证错误.
var (
	// ErrMissingName 代理卡缺少名称.
	ErrMissingName = errors.New("agent card: missing name")
	// ErrMissingURL 代理卡缺少 URL.
	ErrMissingURL = errors.New("agent card: missing url")
)

// A2A 协议错误.
var (
	// ErrRemoteUnavailable 远程代理无法访问.
	ErrRemoteUnavailable = errors.New("a2a: remote agent unavailable")
	// ErrInvalidMessage 报文格式无效.
	ErrInvalidMessage = errors.New("a2a: invalid message format")
)

// JSON-RPC 错误码
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInternalError  = -32603
)
