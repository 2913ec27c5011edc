package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/agentrelay/types"
	"go.uber.org/zap"
)

// executeWithRecovery runs one step until it succeeds, is given up on, or the
// supervisor aborts. It reports whether the step succeeded and whether the
// workflow should go on.
func (e *Executor) executeWithRecovery(ctx context.Context, r *run, step *Step) (ok, cont bool) {
	wf := r.wf
	index := wf.CurrentStep
	policy := wf.RetryPolicy
	agents := r.opts.AvailableAgents
	logger := r.logger.With(zap.Int("step", index), zap.String("agent", step.AgentName))

	step.Context = stepContext(wf, step, index)
	step.markStarted(e.now())
	started := e.now()

	attempts := 0
	defer func() {
		e.observer.StepFinished(step.AgentName, string(step.Status), attempts, e.now().Sub(started).Seconds())
	}()

	modifies := 0

	for attempt := 0; attempt < policy.MaxRetries; {
		if err := ctx.Err(); err != nil {
			step.Error = types.NewError(types.ErrCanceled, "workflow canceled").WithCause(err).Error()
			step.finish(StepFailed, e.now())
			return false, false
		}

		step.RetryCount = attempt
		attempts++
		res, err := e.attempt(ctx, r, step, attempt+1)

		if err == nil {
			step.Output = res.Content
			step.Artifacts = append(step.Artifacts, res.Artifacts...)
			step.Error = ""
			if res.TaskID != "" {
				r.taskIDs = append(r.taskIDs, res.TaskID)
			}

			if e.supervisor != nil {
				d := e.supervisor.ValidateStepResult(ctx, step, wf, agents)
				step.LastDecision = string(d.Action())
				e.observer.DecisionMade("validation", string(d.Action()))

				switch d := d.(type) {
				case Abort:
					step.Error = "aborted by supervisor: " + d.Reasoning
					step.finish(StepFailed, e.now())
					logger.Warn("supervisor aborted step", zap.String("reasoning", d.Reasoning))
					return false, false
				case Modify:
					if modifies < policy.ModifyLimit {
						modifies++
						step.Prompt = d.Task
						logger.Info("supervisor modified task, re-attempting")
						continue
					}
				}
			}

			// 只有被接受的输出才能触发交接
			e.detectHandoff(ctx, r, step)

			step.finish(StepCompleted, e.now())
			logger.Info("step completed", zap.Int("attempts", attempts))
			return true, true
		}

		step.Error = err.Error()
		attempt++
		logger.Warn("step attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", policy.MaxRetries),
			zap.Error(err),
		)

		// 解析失败直接放弃本步骤，不再重试
		if types.IsErrorCode(err, types.ErrAgentNotFound) {
			break
		}

		if e.supervisor != nil {
			d := e.supervisor.DecideErrorRecovery(ctx, step, step.Error, wf, agents)
			step.LastDecision = string(d.Action())
			e.observer.DecisionMade("recovery", string(d.Action()))

			switch d := d.(type) {
			case Abort:
				step.Error = fmt.Sprintf("%s (aborted: %s)", step.Error, d.Reasoning)
				step.finish(StepFailed, e.now())
				return false, false
			case Skip:
				if !step.Critical {
					step.finish(StepFailed, e.now())
					step.finish(StepSkipped, e.now())
					logger.Info("supervisor skipped step", zap.String("reasoning", d.Reasoning))
					return false, true
				}
			case Fallback:
				logger.Info("falling back to another agent",
					zap.String("from", step.AgentName),
					zap.String("to", d.AgentName),
				)
				step.AgentID = d.AgentID
				step.AgentName = d.AgentName
				step.FallbackAgentID = d.AgentID
				continue
			case Modify:
				if modifies < policy.ModifyLimit {
					modifies++
					step.Prompt = d.Task
					continue
				}
			}
		}

		if attempt < policy.MaxRetries {
			if err := e.sleep(ctx, policy.Backoff*time.Duration(attempt)); err != nil {
				step.Error = types.NewError(types.ErrCanceled, "workflow canceled during backoff").WithCause(err).Error()
				step.finish(StepFailed, e.now())
				return false, false
			}
		}
	}

	step.finish(StepFailed, e.now())
	if !step.Critical {
		step.finish(StepSkipped, e.now())
		logger.Info("non-critical step skipped after failures", zap.Int("attempts", attempts))
		return false, true
	}
	logger.Warn("critical step failed", zap.Int("attempts", attempts))
	return false, false
}

// detectHandoff inserts a handoff step when the output delegates work.
func (e *Executor) detectHandoff(ctx context.Context, r *run, step *Step) {
	if e.handoffs == nil {
		return
	}
	req := e.handoffs.Detect(ctx, step.Output, r.opts.AvailableAgents, step.AgentName)
	if req == nil {
		return
	}
	inserted := insertHandoff(r.wf, step, req, r.opts.AvailableAgents)
	if inserted == nil {
		r.logger.Info("handoff dropped",
			zap.String("target", req.TargetAgentName),
			zap.Int("steps", len(r.wf.Steps)),
			zap.Int("max_iterations", r.wf.MaxIterations),
		)
		return
	}
	e.observer.HandoffInserted(step.AgentName, inserted.AgentName, string(req.Reason))
	r.logger.Info("handoff inserted",
		zap.String("from", step.AgentName),
		zap.String("to", inserted.AgentName),
		zap.String("reason", string(req.Reason)),
	)
}
