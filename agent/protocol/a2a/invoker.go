package a2a

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentrelay/agent/directory"
	"github.com/BaSui01/agentrelay/types"
	"github.com/BaSui01/agentrelay/workflow"
)

// Tracker 记录调用结果并控制熔断许可，*directory.Registry 实现该接口.
type Tracker interface {
	Acquire(id string) error
	RecordSuccess(id string, latency time.Duration)
	RecordFailure(id string, err error)
	Release(id string)
}

var _ Tracker = (*directory.Registry)(nil)

// Invoker 以 A2A 协议调用代理并把结果上报给 Tracker.
type Invoker struct {
	client  *Client
	tracker Tracker
	logger  *zap.Logger
}

var _ workflow.Invoker = (*Invoker)(nil)

// NewInvoker 创建调用器；tracker 可为 nil.
func NewInvoker(client *Client, tracker Tracker, logger *zap.Logger) *Invoker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Invoker{
		client:  client,
		tracker: tracker,
		logger:  logger.With(zap.String("component", "a2a_invoker")),
	}
}

// Invoke implements workflow.Invoker.
func (i *Invoker) Invoke(ctx context.Context, agent directory.Agent, req workflow.InvokeRequest) (*workflow.InvokeResult, error) {
	if i.tracker != nil {
		if err := i.tracker.Acquire(agent.ID); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	resp, err := i.client.Send(ctx, agent.URL, Request{
		Prompt:           req.Prompt,
		ContextID:        req.ContextID,
		ReferenceTaskIDs: req.ReferenceIDs,
		UserID:           req.UserID,
	})
	i.record(agent.ID, time.Since(start), err)

	if err != nil {
		i.logger.Debug("agent invocation failed",
			zap.String("agent_id", agent.ID),
			zap.String("code", string(types.GetErrorCode(err))),
			zap.Error(err),
		)
		return nil, err
	}

	out := &workflow.InvokeResult{
		Content: resp.Content,
		State:   resp.State,
		TaskID:  resp.TaskID,
	}
	for _, a := range resp.Artifacts {
		switch a.Kind {
		case ArtifactKindData:
			out.Artifacts = append(out.Artifacts, workflow.NewArtifact(workflow.ArtifactData, a.Name, string(a.Data)))
		default:
			out.Artifacts = append(out.Artifacts, workflow.NewArtifact(workflow.ArtifactText, a.Name, a.Text))
		}
	}
	return out, nil
}

// record 代理自身报错说明它在线，计为成功；调用方取消只归还许可.
func (i *Invoker) record(id string, latency time.Duration, err error) {
	if i.tracker == nil {
		return
	}
	switch {
	case err == nil, types.IsErrorCode(err, types.ErrAgent):
		i.tracker.RecordSuccess(id, latency)
	case types.IsErrorCode(err, types.ErrCanceled), errors.Is(err, context.Canceled):
		i.tracker.Release(id)
	default:
		i.tracker.RecordFailure(id, err)
	}
}
