// Package libagent ties the pieces of the decision agent together: it
// constructs a source provider from options, keeps the in-memory
// project snapshot fresh on a wall-clock-aligned cadence, and resolves
// projects for the HTTP layer.
package libagent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/quay/zlog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/decisionhub/agent"
	"github.com/decisionhub/agent/provider"
)

// Agent is the constructed decision agent.
type Agent struct {
	store    *agent.Store
	src      provider.Provider
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

// New builds the configured source provider, performs the initial data
// load, and, for backends that want periodic refresh, starts the
// background poller.
//
// The initial load is blocking and a failure fails construction;
// later refresh failures only log and keep the previous snapshot.
func New(ctx context.Context, opts Options) (*Agent, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "libagent/New")
	if err := opts.parse(); err != nil {
		return nil, err
	}
	src, err := opts.source(ctx)
	if err != nil {
		return nil, err
	}

	a := &Agent{
		store:    agent.NewStore(),
		src:      src,
		interval: opts.PollInterval,
	}
	if err := a.refresh(ctx); err != nil {
		return nil, fmt.Errorf("libagent: initial data load failed: %w", err)
	}
	zlog.Info(ctx).
		Int("projects", a.store.Len()).
		Msg("initial data load done")

	if src.ShouldRefresh() {
		pctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		a.cancel = cancel
		a.done = make(chan struct{})
		go a.poll(pctx)
	}
	return a, nil
}

// Close stops the background poller, if any, and waits for it to
// return.
func (a *Agent) Close(ctx context.Context) error {
	if a.cancel == nil {
		return nil
	}
	a.cancel()
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Project resolves a project by its store key or, failing that, by a
// case-insensitive match on the project id recorded in its release
// manifest.
func (a *Agent) Project(identifier string) (*agent.Project, bool) {
	if p, ok := a.store.Get(identifier); ok {
		return p, true
	}
	var found *agent.Project
	a.store.Range(func(_ string, p *agent.Project) bool {
		if rd := p.Catalog.ReleaseData(); rd != nil && strings.EqualFold(rd.Project.ID, identifier) {
			found = p
			return false
		}
		return true
	})
	return found, found != nil
}

// Store returns the live project snapshot.
func (a *Agent) Store() *agent.Store {
	return a.store
}

func (a *Agent) refresh(ctx context.Context) error {
	ref := uuid.New().String()
	ctx = zlog.ContextWithValues(ctx,
		"component", "libagent/Agent.refresh",
		"ref", ref)
	ctx, span := tracer.Start(ctx, "Agent.refresh",
		trace.WithAttributes(attribute.String("ref", ref)))
	defer span.End()
	zlog.Info(ctx).Msg("refresh start")

	start := time.Now()
	diff, err := a.src.LoadData(ctx, a.store)
	refreshDuration.Record(ctx, time.Since(start).Seconds())
	refreshCount.Add(ctx, 1, metric.WithAttributes(attribute.Bool("error", err != nil)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "refresh failed")
		zlog.Error(ctx).
			Err(err).
			Msg("refresh failed, keeping previous snapshot")
		return err
	}
	for _, d := range diff {
		zlog.Info(ctx).
			Str("key", d.Key).
			Stringer("op", d.Op).
			Msg("project changed")
	}
	zlog.Info(ctx).
		Int("changes", len(diff)).
		Dur("elapsed", time.Since(start)).
		Msg("refresh done")
	return nil
}

// Poll refreshes on every wall-clock multiple of the interval. The
// refresh runs synchronously in the loop, so a slow refresh drops the
// ticks it overlaps instead of stacking them.
func (a *Agent) poll(ctx context.Context) {
	defer close(a.done)
	first := time.NewTimer(nextAlignedDelay(time.Now(), a.interval))
	defer first.Stop()
	select {
	case <-ctx.Done():
		return
	case <-first.C:
	}

	tick := time.NewTicker(a.interval)
	defer tick.Stop()
	for {
		a.refresh(ctx)
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
	}
}

// NextAlignedDelay reports how long until the next wall-clock multiple
// of interval after now. A now exactly on a boundary waits one full
// interval.
func nextAlignedDelay(now time.Time, interval time.Duration) time.Duration {
	return now.Truncate(interval).Add(interval).Sub(now)
}
