package importer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/avergara/uniondb/internal/domain"
	"github.com/avergara/uniondb/internal/validation"
)

// ErrSessionNotFound is returned for unknown or expired session ids.
var ErrSessionNotFound = errors.New("import session not found")

// DefaultScoreThreshold is the confidence below which building suggestions
// are not surfaced unless the operator lowers it.
const DefaultScoreThreshold = 0.8

// Service owns import sessions. Each uploaded file becomes one session with
// its own validator instance, duplicate caches, and reconciliation state.
type Service struct {
	store            Store
	schema           domain.Schema
	chunkSize        int
	defaultThreshold float64

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
}

// NewService creates the import service.
func NewService(store Store, schema domain.Schema, chunkSize int, defaultThreshold float64) *Service {
	if defaultThreshold <= 0 {
		defaultThreshold = DefaultScoreThreshold
	}
	return &Service{
		store:            store,
		schema:           schema,
		chunkSize:        chunkSize,
		defaultThreshold: defaultThreshold,
		sessions:         make(map[uuid.UUID]*Session),
	}
}

// Session holds the drafts of one uploaded file together with the per-batch
// collaborators that mutate them.
type Session struct {
	ID        uuid.UUID
	mu        sync.Mutex
	records   []*domain.DraftRecord
	threshold float64

	parser     *Parser
	detector   *Detector
	reconciler *Reconciler
	store      Store

	suggestionsUnavailable bool
}

// CreateSession parses the uploaded file, preloads duplicate state, applies
// the first suggestion batch, and registers the session.
func (s *Service) CreateSession(ctx context.Context, fileName string, payload []byte, threshold *float64) (*Session, error) {
	parser := NewParser(validation.New(s.schema))
	records, err := parser.ParseFile(fileName, payload)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.New("no importable rows found")
	}

	session := &Session{
		ID:        uuid.New(),
		records:   records,
		threshold: s.defaultThreshold,
		parser:    parser,
		detector:  NewDetector(s.store, s.chunkSize),
		store:     s.store,
	}
	session.reconciler = NewReconciler(s.store, &session.mu)
	if threshold != nil {
		session.threshold = *threshold
	}

	if err := session.detector.Preload(ctx, records); err != nil {
		return nil, fmt.Errorf("duplicate preload: %w", err)
	}
	if err := session.reconciler.Refresh(ctx, records, session.threshold); err != nil {
		// Matching-service failures are non-fatal to the batch; drafts keep
		// their baseline building addresses and the session is flagged so
		// responses can say so.
		session.suggestionsUnavailable = true
		log.Printf("[IMPORT] session %s: suggestions unavailable: %v", session.ID, err)
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	log.Printf("[IMPORT] session %s: parsed %d rows from %s", session.ID, len(records), fileName)
	return session, nil
}

// Get returns a registered session.
func (s *Service) Get(id uuid.UUID) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Remove discards a session and its caches.
func (s *Service) Remove(id uuid.UUID) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Records returns a snapshot of the session's drafts.
func (sn *Session) Records() []*domain.DraftRecord {
	sn.mu.Lock()
	defer sn.mu.Unlock()
	out := make([]*domain.DraftRecord, len(sn.records))
	for i, rec := range sn.records {
		out[i] = rec.Clone()
	}
	return out
}

// Threshold returns the session's current suggestion threshold.
func (sn *Session) Threshold() float64 {
	sn.mu.Lock()
	defer sn.mu.Unlock()
	return sn.threshold
}

// SuggestionsUnavailable reports whether the latest suggestion refresh
// failed, leaving the drafts on baseline or stale building suggestions.
func (sn *Session) SuggestionsUnavailable() bool {
	sn.mu.Lock()
	defer sn.mu.Unlock()
	return sn.suggestionsUnavailable
}

// SetThreshold re-runs the suggestion reconciliation at a new threshold,
// superseding the previous suggestion state.
func (sn *Session) SetThreshold(ctx context.Context, threshold float64) error {
	sn.mu.Lock()
	sn.threshold = threshold
	records := sn.records
	sn.mu.Unlock()

	err := sn.reconciler.Refresh(ctx, records, threshold)

	// A superseded refresh reports context.Canceled; the outcome then belongs
	// to the refresh that superseded it.
	if !errors.Is(err, context.Canceled) {
		sn.mu.Lock()
		sn.suggestionsUnavailable = err != nil
		sn.mu.Unlock()
	}
	return err
}

// UpdateRecord applies an operator edit to one draft: the edited entities
// replace the stored ones, the manual-override invariant is enforced, the
// record is re-validated, and its duplicate flags refreshed via the lazy
// detector path.
func (sn *Session) UpdateRecord(ctx context.Context, index int, edited *domain.DraftRecord) (*domain.DraftRecord, error) {
	sn.mu.Lock()
	defer sn.mu.Unlock()

	if index < 0 || index >= len(sn.records) {
		return nil, fmt.Errorf("record index %d out of range", index)
	}
	current := sn.records[index]

	previousCIF := current.Afiliada.CIF
	previousDireccion := current.Piso.Direccion

	current.Afiliada = edited.Afiliada
	current.Piso = edited.Piso
	current.Bloque = edited.Bloque
	current.Facturacion = edited.Facturacion
	current.Meta.ManualOverride = edited.Meta.ManualOverride

	// The manual override only survives while it matches the building link.
	if current.Meta.ManualOverride != nil &&
		(current.Piso.BloqueID == nil || *current.Piso.BloqueID != current.Meta.ManualOverride.BloqueID) {
		current.Meta.ManualOverride = nil
	}

	sn.parser.Validate(current)

	if current.Afiliada.CIF != previousCIF {
		sn.detector.MarkUnknownCIF(current.Afiliada.CIF)
	}
	if current.Piso.Direccion != previousDireccion {
		sn.detector.MarkUnknownDireccion(current.Piso.Direccion)
	}

	dupCIF, err := sn.detector.EnsureCIF(ctx, current.Afiliada.CIF)
	if err != nil {
		return nil, err
	}
	dupDireccion, err := sn.detector.EnsureDireccion(ctx, current.Piso.Direccion)
	if err != nil {
		return nil, err
	}
	current.Meta.DuplicateCIF = dupCIF
	current.Meta.DuplicateDireccion = dupDireccion

	return current.Clone(), nil
}

// Execute imports every valid draft of the session and returns the
// aggregate result. Invalid drafts are skipped, not failed.
func (sn *Session) Execute(ctx context.Context, progress func(string)) domain.ImportResult {
	sn.mu.Lock()
	valid := make([]*domain.DraftRecord, 0, len(sn.records))
	for _, rec := range sn.records {
		if rec.Validation.Valid {
			valid = append(valid, rec)
		}
	}
	sn.mu.Unlock()

	executor := NewExecutor(sn.store)
	return executor.Execute(ctx, valid, progress)
}
