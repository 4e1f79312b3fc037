// Package engine orchestrates run and check invocations against the
// sandboxed script runtime, keeping timestamps, counters, and the
// normalized result on the task's runtime state.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/signkeeper/signkeeper/internal/history"
	"github.com/signkeeper/signkeeper/internal/registry"
	"github.com/signkeeper/signkeeper/models"
	"github.com/signkeeper/signkeeper/types"
)

// Capability is what the sandboxed runtime produces from a task's code:
// the run and/or check functions, scoped to the declared grants.
type Capability interface {
	Run(ctx context.Context, params map[string]string) (any, error)
	Check(ctx context.Context, params map[string]string) (bool, error)
	HasRun() bool
	HasCheck() bool
}

// Runtime builds capabilities from task definitions. The actual sandbox is
// an external collaborator; embedders register their implementation.
type Runtime interface {
	Build(def *models.TaskDefinition) (Capability, error)
}

// NoRuntime is the default Runtime when no sandbox is registered. Every
// build fails, so runs record a capability failure and checks propagate
// one.
type NoRuntime struct{}

func (NoRuntime) Build(def *models.TaskDefinition) (Capability, error) {
	return nil, fmt.Errorf("no script runtime registered")
}

// Engine executes tasks and records their outcomes.
type Engine struct {
	registry *registry.Registry
	runtime  Runtime
	history  *history.Engine
	log      *slog.Logger
}

// New creates an execution engine. A nil runtime falls back to NoRuntime.
func New(reg *registry.Registry, rt Runtime, hist *history.Engine, log *slog.Logger) *Engine {
	if rt == nil {
		rt = NoRuntime{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{registry: reg, runtime: rt, history: hist, log: log}
}

// Run executes the task's run capability and returns the updated record.
// Task failure is reported through the record's result and timestamps, not
// through the returned error; only resolution and persistence failures
// propagate. Operations on one identity are strictly ordered.
func (e *Engine) Run(ctx context.Context, identity string) (*models.TaskRecord, error) {
	unlock := e.registry.LockIdentity(identity)
	defer unlock()

	rec, err := e.registry.Get(ctx, identity)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	now := start.UnixMilli()
	rec.State.RunAt = now
	rec.State.Cnt++

	logs := []string{fmt.Sprintf("sign-in started - %s", start.Format(time.RFC3339))}
	e.log.Info("sign-in started", "identity", identity)

	raw, runErr := e.invokeRun(ctx, rec)

	var success bool
	var capErr error
	if runErr == nil {
		// Normalize against the pre-run timestamps, then mark success.
		// A success supersedes any failure that was not already newer.
		Normalize(rec, raw)
		rec.State.SuccessAt = now
		if rec.State.FailureAt >= rec.State.SuccessAt {
			rec.State.FailureAt = 0
		}
		rec.State.OK++
		success = true
		logs = append(logs, fmt.Sprintf("sign-in succeeded - took %dms", time.Since(start).Milliseconds()))
		e.log.Info("sign-in succeeded", "identity", identity)
	} else {
		capErr = types.CapabilityError(identity, runErr)
		message := runErr.Error()
		if message == "" {
			message = "failed"
		}
		Normalize(rec, message)
		rec.State.FailureAt = now
		if rec.State.SuccessAt >= rec.State.FailureAt {
			rec.State.SuccessAt = 0
		}
		logs = append(logs, fmt.Sprintf("sign-in failed - error: %v", runErr))
		e.log.Error("sign-in failed", "identity", identity, "error", runErr)
	}

	if err := e.registry.SaveRecord(ctx, rec); err != nil {
		return rec, err
	}

	// History is best-effort; it must never abort the task's outcome.
	if err := e.history.Append(ctx, identity, models.HistoryRun, success, rec.State.Result.Summary, history.AppendOptions{
		Duration: time.Since(start).Milliseconds(),
		Logs:     logs,
		Params:   rec.State.Params,
		Error:    capErr,
	}); err != nil {
		e.log.Warn("failed to append run history", "identity", identity, "error", err)
	}
	return rec, nil
}

func (e *Engine) invokeRun(ctx context.Context, rec *models.TaskRecord) (any, error) {
	capability, err := e.runtime.Build(&rec.TaskDefinition)
	if err != nil {
		return nil, err
	}
	if !capability.HasRun() {
		return nil, fmt.Errorf("script exposes no run capability")
	}
	return capability.Run(ctx, rec.State.Params)
}

// Check invokes the task's check capability and reports whether the
// account is online. Unlike Run, a thrown capability failure propagates to
// the caller after the failed history entry is recorded.
func (e *Engine) Check(ctx context.Context, identity string) (bool, error) {
	unlock := e.registry.LockIdentity(identity)
	defer unlock()

	rec, err := e.registry.Get(ctx, identity)
	if err != nil {
		return false, err
	}

	start := time.Now()
	logs := []string{fmt.Sprintf("login check started - %s", start.Format(time.RFC3339))}

	online, checkErr := e.invokeCheck(ctx, rec)
	if checkErr != nil {
		result := fmt.Sprintf("check failed: %v", checkErr)
		logs = append(logs, fmt.Sprintf("login check failed - error: %v", checkErr))
		capErr := types.CapabilityError(identity, checkErr)
		if err := e.history.Append(ctx, identity, models.HistoryCheck, false, result, history.AppendOptions{
			Duration: time.Since(start).Milliseconds(),
			Logs:     logs,
			Params:   rec.State.Params,
			Error:    capErr,
		}); err != nil {
			e.log.Warn("failed to append check history", "identity", identity, "error", err)
		}
		return false, capErr
	}

	result := "offline"
	if online {
		result = "online"
		rec.State.OnlineAt = start.UnixMilli()
		if err := e.registry.SaveRecord(ctx, rec); err != nil {
			return online, err
		}
	}
	logs = append(logs, fmt.Sprintf("login check finished - status: %s - took %dms", result, time.Since(start).Milliseconds()))

	if err := e.history.Append(ctx, identity, models.HistoryCheck, online, result, history.AppendOptions{
		Duration: time.Since(start).Milliseconds(),
		Logs:     logs,
		Params:   rec.State.Params,
	}); err != nil {
		e.log.Warn("failed to append check history", "identity", identity, "error", err)
	}
	return online, nil
}

func (e *Engine) invokeCheck(ctx context.Context, rec *models.TaskRecord) (bool, error) {
	capability, err := e.runtime.Build(&rec.TaskDefinition)
	if err != nil {
		return false, err
	}
	if !capability.HasCheck() {
		return false, fmt.Errorf("script exposes no check capability")
	}
	return capability.Check(ctx, rec.State.Params)
}
