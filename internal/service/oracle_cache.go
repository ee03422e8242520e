package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/Strob0t/agentplan/internal/domain/plan"
	"github.com/Strob0t/agentplan/internal/port/cache"
	"github.com/Strob0t/agentplan/internal/port/planner"
)

// CachedOracle answers repeated planning requests from a cache. Adaptation
// requests always reach the wrapped oracle.
type CachedOracle struct {
	next  planner.Oracle
	cache cache.Cache
	model string
	ttl   time.Duration
}

// NewCachedOracle wraps next. model is part of the cache key so switching
// models never serves stale plans.
func NewCachedOracle(next planner.Oracle, c cache.Cache, model string, ttl time.Duration) *CachedOracle {
	return &CachedOracle{next: next, cache: c, model: model, ttl: ttl}
}

// Plan implements planner.Oracle.
func (o *CachedOracle) Plan(ctx context.Context, req plan.GenerateRequest) (*plan.RawPlan, error) {
	if req.Adaptation != nil {
		return o.next.Plan(ctx, req)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return o.next.Plan(ctx, req)
	}
	key := cache.Key("planner", []byte(o.model), body)

	if data, ok, err := o.cache.Get(ctx, key); err != nil {
		slog.WarnContext(ctx, "planner cache get failed", "error", err)
	} else if ok {
		var raw plan.RawPlan
		if err := json.Unmarshal(data, &raw); err == nil {
			slog.DebugContext(ctx, "planner cache hit", "key", key)
			return &raw, nil
		}
	}

	raw, err := o.next.Plan(ctx, req)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(raw); err == nil {
		if err := o.cache.Set(ctx, key, data, o.ttl); err != nil {
			slog.WarnContext(ctx, "planner cache set failed", "error", err)
		}
	}
	return raw, nil
}
