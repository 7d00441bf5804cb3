// Package criteria implements pluggable completion checks gating workflow
// step transitions. An agent's complete_step signal is necessary but not
// sufficient; the registered checker for the step decides whether the
// transition actually happens.
package criteria

import (
	"context"
	"fmt"
	"sync"

	"onboardflow/backend/internal/logging"
	"onboardflow/backend/pkg/models"
)

// Result is the outcome of a criteria check. Data is merged into the step's
// data on a satisfied transition.
type Result struct {
	Satisfied bool           `json:"satisfied"`
	Missing   []string       `json:"missing,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Checker decides whether a step's exit condition is satisfied.
type Checker interface {
	Check(ctx context.Context, instanceID, userID string, signalData, params map[string]any) (Result, error)
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc func(ctx context.Context, instanceID, userID string, signalData, params map[string]any) (Result, error)

func (f CheckerFunc) Check(ctx context.Context, instanceID, userID string, signalData, params map[string]any) (Result, error) {
	return f(ctx, instanceID, userID, signalData, params)
}

// The built-in checker names.
const (
	TypeAgentSignal = "agent_signal"
	TypeMemory      = "agent_signal_memory"
	TypeWidget      = "agent_signal_widget"
	TypeAuto        = "auto"
)

// Registry maps criteria type names to checkers. Checkers are registered at
// startup; reads are safe for concurrent use across workflow instances.
type Registry struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	logger   *logging.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *logging.Logger) *Registry {
	return &Registry{
		checkers: make(map[string]Checker),
		logger:   logger,
	}
}

// Register adds or replaces a checker under the given type name.
func (r *Registry) Register(name string, checker Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers[name] = checker
	r.logger.Info("registered completion criteria checker", "type", name)
}

func (r *Registry) lookup(name string) (Checker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.checkers[name]
	return c, ok
}

// Check evaluates the configured criteria for a step. An unknown type falls
// back to agent_signal; a checker error or panic converts to an unsatisfied
// result so a checker bug never crashes the state machine.
func (r *Registry) Check(ctx context.Context, cfg models.CriteriaConfig, instanceID, userID string, signalData map[string]any) (result Result) {
	criteriaType := cfg.Type
	if criteriaType == "" {
		criteriaType = TypeAgentSignal
	}

	checker, ok := r.lookup(criteriaType)
	if !ok {
		r.logger.Warn("unknown criteria type, defaulting to agent_signal", "type", criteriaType)
		criteriaType = TypeAgentSignal
		checker, ok = r.lookup(criteriaType)
		if !ok {
			// Registry without built-ins; trust the agent.
			return Result{Satisfied: true}
		}
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("criteria checker panicked", "type", criteriaType, "instance_id", instanceID, "panic", rec)
			result = Result{
				Satisfied: false,
				Missing:   []string{fmt.Sprintf("criteria check failed: %v", rec)},
			}
		}
	}()

	res, err := checker.Check(ctx, instanceID, userID, signalData, cfg.Params)
	if err != nil {
		r.logger.Error("criteria checker failed", "type", criteriaType, "instance_id", instanceID, "error", err)
		return Result{
			Satisfied: false,
			Missing:   []string{fmt.Sprintf("criteria check failed: %v", err)},
		}
	}

	r.logger.Debug("criteria check",
		"type", criteriaType,
		"instance_id", instanceID,
		"satisfied", res.Satisfied,
	)
	return res
}
