package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/qntmpulse/relationship-engine/internal/enrich"
	"github.com/qntmpulse/relationship-engine/internal/pkg/logger"
)

// refreshWorkers bounds the recompute parallelism. Profiles are
// independent, so the only contention is on the store locks.
const refreshWorkers = 8

// RefreshFailure records one contact that failed during a batch
// refresh.
type RefreshFailure struct {
	ContactKey string `json:"contact_key"`
	Error      string `json:"error"`
}

// RefreshResult is the outcome of a batch refresh. A single bad contact
// never aborts the batch.
type RefreshResult struct {
	Processed int              `json:"processed"`
	Failed    int              `json:"failed"`
	Enriched  int              `json:"enriched"`
	Failures  []RefreshFailure `json:"failures,omitempty"`
}

// Refresh recomputes every contact's profile and lead score from the
// current aggregates, runs the optional enrichment pass, and sweeps
// alert triggers. Interruptible: a canceled context stops scheduling
// new contacts; the next refresh recomputes from current state.
func (e *Engine) Refresh(ctx context.Context) RefreshResult {
	keys := e.agg.Keys()

	var (
		mu     sync.Mutex
		result RefreshResult
	)

	jobs := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < refreshWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for key := range jobs {
				err := e.recomputeOne(key)
				mu.Lock()
				if err != nil {
					result.Failed++
					result.Failures = append(result.Failures, RefreshFailure{
						ContactKey: key,
						Error:      err.Error(),
					})
				} else {
					result.Processed++
				}
				mu.Unlock()
			}
		}()
	}

scheduling:
	for _, key := range keys {
		select {
		case <-ctx.Done():
			break scheduling
		case jobs <- key:
		}
	}
	close(jobs)
	wg.Wait()

	if ctx.Err() == nil && e.enricher != nil {
		result.Enriched = e.enrichPass(ctx)
	}

	if ctx.Err() == nil {
		sweep := e.SweepAlerts()
		logger.Info("refresh complete",
			"processed", result.Processed, "failed", result.Failed,
			"enriched", result.Enriched, "alerts_created", sweep.Created)
	}

	return result
}

// recomputeOne isolates a single contact's recompute so one bad record
// cannot take down the batch.
func (e *Engine) recomputeOne(key string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("recompute panic: %v", r)
		}
	}()
	e.recompute(key, identity{})
	return nil
}

// enrichPass attaches AI predictions to every lead. Enrichment failures
// are logged and skipped; they never fail the refresh.
func (e *Engine) enrichPass(ctx context.Context) int {
	enriched := 0
	for key, lead := range e.store.Leads() {
		if ctx.Err() != nil {
			break
		}
		p, ok := e.store.GetProfile(key)
		if !ok {
			continue
		}
		prediction, err := e.enricher.Enrich(ctx, p, lead)
		if err != nil {
			logger.Warn("enrichment skipped", "contact_key", key, "error", err.Error())
			continue
		}
		enrich.Apply(lead, prediction)
		e.store.UpsertLead(lead)
		enriched++
	}
	return enriched
}
