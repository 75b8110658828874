package model

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// trigger moves the model into SETTLING and starts a settlement run, or
// flags more work when a run is already in flight. At most one run executes
// per model at any time.
func (m *Model) trigger() {
	m.mu.Lock()
	if m.destructed {
		m.mu.Unlock()
		return
	}
	if m.state == stateSettling {
		m.moreWork = true
		m.mu.Unlock()
		return
	}
	m.state = stateSettling
	m.mu.Unlock()
	go m.runSettlement()
}

// Ready blocks until the current and any cascading settlement runs finish.
// A run failure is delivered to every waiter; when the model is already
// ready, Ready returns immediately.
func (m *Model) Ready(ctx context.Context) error {
	m.mu.Lock()
	if m.state == stateReady {
		m.mu.Unlock()
		return nil
	}
	ch := make(chan error, 1)
	m.waiters = append(m.waiters, ch)
	m.mu.Unlock()
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Model) runSettlement() {
	for {
		start := m.opts.clock()
		err := m.runRounds(context.Background())
		m.opts.metrics.ObserveDuration(OpSettle, m.opts.clock().Sub(start))
		m.opts.metrics.RecordResult(OpSettle, statusOf(err))

		m.mu.Lock()
		if err == nil && m.moreWork {
			m.moreWork = false
			m.mu.Unlock()
			continue
		}
		m.moreWork = false
		m.state = stateReady
		waiters := m.waiters
		m.waiters = nil
		m.mu.Unlock()

		// Failures must surface even when nobody awaits Ready.
		if err != nil && len(waiters) == 0 {
			m.opts.logger.Error("settlement failed",
				"schema", m.schema.name, "error", err)
		}
		for _, ch := range waiters {
			ch <- err
		}
		return
	}
}

// runRounds drives the convergence loop: recompute derived attributes until
// the model reaches a fixed point or the calculation ceiling is hit.
func (m *Model) runRounds(ctx context.Context) error {
	for n := 0; ; n++ {
		if n >= m.opts.maxCalc {
			m.mu.Lock()
			attrs := m.changedLocked(calcBranch)
			m.mu.Unlock()
			return &ConvergenceError{Schema: m.schema.name, Limit: m.opts.maxCalc, Attrs: attrs}
		}
		discarded, err := m.round(ctx)
		if err != nil {
			return err
		}
		m.mu.Lock()
		again := discarded || m.anyChangedLocked(calcBranch) || m.moreWork
		m.moreWork = false
		m.mu.Unlock()
		if again {
			continue
		}

		// Fixed point reached: report the net effect relative to the last
		// externally observed state, once per changed attribute in schema
		// order, followed by exactly one model-level change.
		m.mu.Lock()
		changed := m.changedLocked(changeBranch)
		for _, a := range m.attrs {
			a.store.commit(changeBranch)
		}
		m.mu.Unlock()
		if len(changed) > 0 {
			for _, name := range changed {
				m.notifier.emit(Event{Kind: EventChangeAttr, Model: m, Attr: name})
			}
			m.notifier.emit(Event{Kind: EventChange, Model: m})
		}

		// An event handler may itself have mutated state.
		m.mu.Lock()
		again = m.anyChangedLocked(calcBranch) || m.moreWork
		m.moreWork = false
		m.mu.Unlock()
		if !again {
			return nil
		}
	}
}

// round executes one settlement pass. The returned bool reports that the
// race guard fired: something mutated the model while asynchronous results
// were in flight, so the just-computed values were discarded as stale.
func (m *Model) round(ctx context.Context) (bool, error) {
	m.mu.Lock()
	for _, a := range m.attrs {
		a.store.commit(calcBranch)
	}

	var tasks []func(context.Context) error
	results := make([]Value, len(m.attrs))
	computed := make([]bool, len(m.attrs))
	for i, a := range m.attrs {
		i, a := i, a
		if a.field.Calculate != nil {
			tasks = append(tasks, func(tctx context.Context) error {
				v, err := a.field.Calculate(tctx, m)
				if err != nil {
					return fmt.Errorf("calculate %s: %w", a.field.Name, err)
				}
				results[i] = v
				computed[i] = true
				return nil
			})
		}
		if a.field.Amend != nil && a.store.isChanged(changeBranch) {
			tasks = append(tasks, func(tctx context.Context) error {
				if err := a.field.Amend(tctx, m); err != nil {
					return fmt.Errorf("amend %s: %w", a.field.Name, err)
				}
				return nil
			})
		}
		if r, ok := a.store.get().(Readier); ok {
			tasks = append(tasks, func(tctx context.Context) error {
				return r.Ready(tctx)
			})
		}
	}
	m.mu.Unlock()

	// Joined wait: the round does not proceed until every calculation,
	// amend and nested-readiness hook resolves. Any failure is the round's
	// failure.
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range tasks {
		t := t
		g.Go(func() error { return t(gctx) })
	}
	if err := g.Wait(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.anyChangedLocked(calcBranch) {
		// The results were computed against stale state; discard them and
		// let the caller restart the round. Changes caused by this round's
		// own amend side effects are deliberately indistinguishable from
		// external mutation.
		return true, nil
	}
	for i, a := range m.attrs {
		if !computed[i] {
			continue
		}
		if _, err := a.setRaw(results[i]); err != nil {
			return false, err
		}
	}
	return false, nil
}
