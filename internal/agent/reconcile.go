package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/haasonsaas/chatagent/pkg/models"
)

// DeniedResult is the result recorded for a confirmation-required call the user rejected.
const DeniedResult = "Error: User denied access to tool execution"

// CanceledResult is the result recorded for a confirmation-required call that
// was followed by a message carrying no decision for it.
const CanceledResult = "Error: Tool call canceled because the conversation continued without a decision"

// Reconciler resolves pending tool calls in a message history.
//
// For every call whose result is unset, in history order:
//   - unknown tools get an error result;
//   - auto tools are executed;
//   - confirmation-required tools look for a decision on the same call id in the
//     message that follows. Approved calls run their execution-table entry and
//     denied calls get DeniedResult. A following message without a decision
//     cancels the call with CanceledResult. Calls in the last message stay pending.
//
// Calls run one after another in history order. Only adjacent independent auto
// tools may overlap (see ToolExecutor.ExecuteInOrder).
//
// Calls that already carry a result are never touched, so reconciling a fully
// resolved history is a no-op.
type Reconciler struct {
	registry *Registry
	executor *ToolExecutor
	logger   *slog.Logger
}

// NewReconciler returns a reconciler over registry. A nil executor gets default settings.
func NewReconciler(registry *Registry, executor *ToolExecutor) *Reconciler {
	if executor == nil {
		executor = NewToolExecutor(registry, DefaultToolExecConfig())
	}
	return &Reconciler{
		registry: registry,
		executor: executor,
		logger:   slog.Default().With("component", "reconciler"),
	}
}

// WithLogger sets the logger.
func (r *Reconciler) WithLogger(logger *slog.Logger) *Reconciler {
	if logger != nil {
		r.logger = logger.With("component", "reconciler")
	}
	return r
}

type callSlot struct {
	msg  int
	call int
}

// Reconcile returns a new history with every resolvable pending call resolved.
// The input is not modified. Handler failures become error results; the only
// error returned is cancellation of ctx before any work starts.
func (r *Reconciler) Reconcile(ctx context.Context, history []models.Message) ([]models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]models.Message, len(history))
	for i, msg := range history {
		out[i] = msg.Clone()
	}

	var slots []callSlot
	var calls []models.ToolCall

	for i := range out {
		for j, call := range out[i].ToolCalls {
			if !call.Pending() {
				continue
			}

			desc, ok := r.registry.Resolve(call.Name)
			if !ok {
				res := errorResult(call, fmt.Errorf("%w: %s", ErrUnknownTool, call.Name))
				out[i].ToolCalls[j].Result = &res
				r.logger.Warn("unknown tool in history", "tool", call.Name, "tool_call_id", call.ID)
				continue
			}

			switch desc.Mode {
			case ToolModeAuto:
				// Auto calls are normally resolved inline when the model issues them.
				r.logger.Debug("executing unresolved auto tool call", "tool", call.Name, "tool_call_id", call.ID)
				slots = append(slots, callSlot{msg: i, call: j})
				calls = append(calls, call)

			case ToolModeConfirm:
				if i+1 >= len(out) {
					continue
				}
				decision, ok := out[i+1].DecisionFor(call.ID)
				if !ok {
					out[i].ToolCalls[j].Result = &models.ToolResult{
						ToolCallID: call.ID,
						Content:    CanceledResult,
						IsError:    true,
					}
					r.logger.Info("canceling confirmation without a decision", "tool", call.Name, "tool_call_id", call.ID)
					continue
				}
				switch decision {
				case models.DecisionApproved:
					slots = append(slots, callSlot{msg: i, call: j})
					calls = append(calls, call)
				case models.DecisionDenied:
					out[i].ToolCalls[j].Result = &models.ToolResult{
						ToolCallID: call.ID,
						Content:    DeniedResult,
						IsError:    true,
					}
				default:
					r.logger.Warn("unrecognized decision treated as denial", "decision", decision, "tool_call_id", call.ID)
					out[i].ToolCalls[j].Result = &models.ToolResult{
						ToolCallID: call.ID,
						Content:    DeniedResult,
						IsError:    true,
					}
				}
			}
		}
	}

	if len(calls) == 0 {
		return out, nil
	}

	results := r.executor.ExecuteInOrder(ctx, calls)
	for k, res := range results {
		slot := slots[k]
		result := res.Result
		out[slot.msg].ToolCalls[slot.call].Result = &result
	}
	return out, nil
}

// HasPending reports whether any call in history still lacks a result.
func HasPending(history []models.Message) bool {
	for _, msg := range history {
		if len(msg.PendingToolCalls()) > 0 {
			return true
		}
	}
	return false
}
