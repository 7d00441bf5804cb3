package criteria

import (
	"context"
	"fmt"

	"onboardflow/backend/internal/logging"
	"onboardflow/backend/internal/repository"
	"onboardflow/backend/internal/services"
)

// defaultDiscoveryQuery is used for memory checks without a category param.
const defaultDiscoveryQuery = "user preferences priorities goals"

// RegisterDefaults installs the four built-in checkers.
func RegisterDefaults(r *Registry, memory services.MemorySearcher, store repository.RecordStore, logger *logging.Logger) {
	r.Register(TypeAgentSignal, CheckerFunc(agentSignal))
	r.Register(TypeAuto, CheckerFunc(agentSignal))
	r.Register(TypeMemory, &MemoryChecker{memory: memory, logger: logger})
	r.Register(TypeWidget, &WidgetChecker{store: store, logger: logger})
}

// agentSignal trusts the agent's own judgment: reaching this checker means
// the agent already signaled complete_step. auto shares the implementation
// for terminal steps that complete once reached.
func agentSignal(ctx context.Context, instanceID, userID string, signalData, params map[string]any) (Result, error) {
	return Result{Satisfied: true}, nil
}

// MemoryChecker requires a minimum number of extracted facts in addition to
// the agent's signal. Used for discovery-type steps.
//
// Params: min_facts (default 1), category (optional search topic).
type MemoryChecker struct {
	memory services.MemorySearcher
	logger *logging.Logger
}

func (c *MemoryChecker) Check(ctx context.Context, instanceID, userID string, signalData, params map[string]any) (Result, error) {
	minFacts := intParam(params, "min_facts", 1)
	category := stringParam(params, "category", "")

	if !c.memory.Available(ctx) {
		// Graceful degradation: an unavailable memory service must not
		// strand the user on a step.
		c.logger.Warn("memory service unavailable, skipping memory check", "instance_id", instanceID)
		return Result{
			Satisfied: true,
			Data:      map[string]any{"memory_check_skipped": true},
		}, nil
	}

	query := category
	if query == "" {
		query = defaultDiscoveryQuery
	}

	facts, err := c.memory.Search(ctx, userID, query, minFacts+5)
	if err != nil {
		c.logger.Error("memory criteria query failed, allowing transition", "instance_id", instanceID, "error", err)
		return Result{
			Satisfied: true,
			Data:      map[string]any{"memory_check_error": err.Error()},
		}, nil
	}

	if len(facts) >= minFacts {
		return Result{
			Satisfied: true,
			Data:      map[string]any{"facts_count": len(facts)},
		}, nil
	}

	subject := category
	if subject == "" {
		subject = "user"
	}
	return Result{
		Satisfied: false,
		Missing: []string{
			fmt.Sprintf("need at least %d facts about %s, have %d", minFacts, subject, len(facts)),
		},
		Data: map[string]any{"facts_count": len(facts)},
	}, nil
}

// WidgetChecker requires a minimum number of records in a collection in
// addition to the agent's signal. Used for brain-dump-type steps.
//
// Params: min_items (default 1), collection (default inbox_items).
type WidgetChecker struct {
	store  repository.RecordStore
	logger *logging.Logger
}

func (c *WidgetChecker) Check(ctx context.Context, instanceID, userID string, signalData, params map[string]any) (Result, error) {
	minItems := intParam(params, "min_items", 1)
	collection := stringParam(params, "collection", repository.CollectionInboxItems)

	list, err := c.store.ListRecords(ctx, collection, repository.ListOptions{
		Filter: map[string]any{"user_id": userID},
	})
	if err != nil {
		c.logger.Error("widget criteria query failed, allowing transition", "instance_id", instanceID, "error", err)
		return Result{
			Satisfied: true,
			Data:      map[string]any{"widget_check_error": err.Error()},
		}, nil
	}

	if list.Total >= minItems {
		return Result{
			Satisfied: true,
			Data:      map[string]any{"items_count": list.Total},
		}, nil
	}

	return Result{
		Satisfied: false,
		Missing: []string{
			fmt.Sprintf("need at least %d items in %s, have %d", minItems, collection, list.Total),
		},
		Data: map[string]any{"items_count": list.Total},
	}, nil
}

// Criteria params arrive as generic JSON; numbers may be float64.
func intParam(params map[string]any, key string, def int) int {
	if params == nil {
		return def
	}
	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

func stringParam(params map[string]any, key, def string) string {
	if params == nil {
		return def
	}
	if v, ok := params[key].(string); ok && v != "" {
		return v
	}
	return def
}
