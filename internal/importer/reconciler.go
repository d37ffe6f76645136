package importer

import (
	"context"
	"fmt"
	"sync"

	"github.com/avergara/uniondb/internal/domain"
	"github.com/avergara/uniondb/internal/restclient"
	"github.com/avergara/uniondb/pkg/normalize"
)

// Reconciler merges fuzzy building suggestions into draft records under the
// precedence manual link > accepted suggestion > baseline short address.
// Refresh is a single-slot supervisor: starting a new reconciliation cancels
// and awaits any outstanding one, so applied suggestions always reflect the
// most recently requested threshold.
type Reconciler struct {
	store Store
	guard sync.Locker

	mu       sync.Mutex
	cancel   context.CancelFunc
	inFlight chan struct{}
}

// NewReconciler creates a reconciler for one import session. guard is the
// lock protecting the session's draft records: reading record state and
// merging suggestions happen under it, the remote call itself does not.
func NewReconciler(store Store, guard sync.Locker) *Reconciler {
	return &Reconciler{store: store, guard: guard}
}

// Refresh cancels any in-flight reconciliation, waits for it to unwind, and
// then applies a fresh batch at the given threshold.
func (r *Reconciler) Refresh(ctx context.Context, records []*domain.DraftRecord, threshold float64) error {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
		prev := r.inFlight
		r.mu.Unlock()
		<-prev
		r.mu.Lock()
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.cancel = cancel
	r.inFlight = done
	r.mu.Unlock()

	defer func() {
		close(done)
		r.mu.Lock()
		if r.inFlight == done {
			r.cancel = nil
			r.inFlight = nil
		}
		r.mu.Unlock()
		cancel()
	}()

	return r.ApplyBatch(runCtx, records, threshold)
}

// ApplyBatch requests suggestions for every record with a non-empty
// residence address and merges the results. The merge is all-or-nothing: a
// failed or cancelled invocation mutates no record state, and re-applying at
// a different threshold fully supersedes the previous suggestion state.
func (r *Reconciler) ApplyBatch(ctx context.Context, records []*domain.DraftRecord, threshold float64) error {
	r.guard.Lock()
	var queries []restclient.AddressQuery
	for idx, rec := range records {
		if rec.Piso.Direccion == "" {
			continue
		}
		queries = append(queries, restclient.AddressQuery{Index: idx, Direccion: rec.Piso.Direccion})
	}
	r.guard.Unlock()
	if len(queries) == 0 {
		return nil
	}

	suggestions, err := r.store.GetBloqueSuggestions(ctx, queries, threshold)
	if err != nil {
		return fmt.Errorf("suggestion batch: %w", err)
	}

	r.guard.Lock()
	defer r.guard.Unlock()
	if err := ctx.Err(); err != nil {
		// Cancelled between response and merge; leave every record untouched.
		return err
	}

	byIndex := make(map[int]restclient.Suggestion, len(suggestions))
	for _, s := range suggestions {
		byIndex[s.Index] = s
	}

	for _, q := range queries {
		mergeSuggestion(records[q.Index], byIndex, q.Index)
	}
	return nil
}

func mergeSuggestion(rec *domain.DraftRecord, byIndex map[int]restclient.Suggestion, idx int) {
	// A link set by a previous suggestion pass (as opposed to an operator
	// choice) is superseded together with the suggestion itself.
	linkFromSuggestion := rec.Meta.ManualOverride == nil &&
		rec.Meta.Suggested != nil &&
		rec.Piso.BloqueID != nil &&
		*rec.Piso.BloqueID == rec.Meta.Suggested.BloqueID

	candidate, found := byIndex[idx]

	if rec.Meta.ManualOverride != nil &&
		rec.Piso.BloqueID != nil &&
		*rec.Piso.BloqueID == rec.Meta.ManualOverride.BloqueID {
		// Explicit operator choice stays; record the fresh candidate only
		// as informational state.
		if found {
			rec.Meta.Suggested = &domain.BuildingSuggestion{
				BloqueID:  candidate.BloqueID,
				Direccion: candidate.BloqueDireccion,
				Score:     candidate.Score,
			}
		} else {
			rec.Meta.Suggested = nil
		}
		return
	}

	if found {
		rec.Meta.Suggested = &domain.BuildingSuggestion{
			BloqueID:  candidate.BloqueID,
			Direccion: candidate.BloqueDireccion,
			Score:     candidate.Score,
		}
		if rec.Piso.BloqueID == nil || linkFromSuggestion {
			rec.Bloque.Direccion = candidate.BloqueDireccion
			id := candidate.BloqueID
			rec.Piso.BloqueID = &id
		}
		return
	}

	rec.Meta.Suggested = nil
	if linkFromSuggestion {
		rec.Piso.BloqueID = nil
	}
	if rec.Piso.BloqueID == nil {
		rec.Bloque.Direccion = normalize.ShortAddress(rec.Piso.Direccion)
	}
}
