package importer

import (
	"context"
	"fmt"
	"runtime"

	"github.com/avergara/uniondb/internal/domain"
	"github.com/avergara/uniondb/internal/restclient"
)

// Executor walks valid draft records strictly in input order and creates the
// remote entities in dependency order: building, residence, member, billing.
// Failures are isolated per record; nothing escapes to abort the batch.
type Executor struct {
	store Store

	// verifiedBloques caches building ids confirmed to exist this session.
	verifiedBloques map[int64]bool
}

// NewExecutor creates an executor with a fresh building-detail cache.
func NewExecutor(store Store) *Executor {
	return &Executor{
		store:           store,
		verifiedBloques: make(map[int64]bool),
	}
}

// Execute imports the given records sequentially. Progress lines are emitted
// through the optional callback as each row starts and finishes, and every
// line also lands in the result log. Rows are processed one at a time so the
// log matches row order and later rows observe earlier creations.
func (e *Executor) Execute(ctx context.Context, records []*domain.DraftRecord, progress func(string)) domain.ImportResult {
	result := domain.ImportResult{
		Total:    len(records),
		Failures: []domain.RowFailure{},
		Created:  []map[string]any{},
		Log:      []string{},
	}

	emit := func(format string, args ...any) {
		line := fmt.Sprintf(format, args...)
		result.Log = append(result.Log, line)
		if progress != nil {
			progress(line)
		}
	}

	for i, rec := range records {
		name := memberName(rec)
		emit("[%d/%d] importing %s", i+1, len(records), name)

		created, err := e.importRecord(ctx, rec, emit)
		if err != nil {
			emit("[%d/%d] FAILED %s: %v", i+1, len(records), name, err)
			result.Failures = append(result.Failures, domain.RowFailure{
				MemberName: name,
				Error:      err.Error(),
				Snapshot:   rec.Clone(),
			})
		} else {
			result.Success++
			result.Created = append(result.Created, created)
			emit("[%d/%d] imported %s", i+1, len(records), name)
		}

		// Yield between rows so a host UI can repaint progress.
		runtime.Gosched()
	}

	emit("import finished: %d/%d rows imported, %d failed", result.Success, result.Total, len(result.Failures))
	for _, created := range result.Created {
		emit("  created afiliada: %s", createdName(created))
	}
	if len(result.Failures) > 0 {
		emit("review the failed rows above, correct them, and retry the import")
	}

	return result
}

// importRecord runs the per-record dependency chain. Billing failures are
// downgraded to warnings because the member row is already durable by then.
func (e *Executor) importRecord(ctx context.Context, rec *domain.DraftRecord, emit func(string, ...any)) (map[string]any, error) {
	bloqueID, err := e.resolveBloque(ctx, rec)
	if err != nil {
		return nil, err
	}

	pisoID, err := e.resolvePiso(ctx, rec, bloqueID, emit)
	if err != nil {
		return nil, err
	}

	afiliadaPayload := rec.Afiliada.Fields()
	afiliadaPayload["piso_id"] = pisoID
	afiliada, err := e.store.CreateRecord(ctx, domain.CollectionAfiliadas, afiliadaPayload)
	if err != nil {
		return nil, fmt.Errorf("create afiliada: %w", err)
	}

	if rec.Facturacion.IBAN != "" || rec.Facturacion.Cuota > 0 {
		payload := rec.Facturacion.Fields()
		payload["afiliada_id"] = recordID(afiliada)
		if _, err := e.store.CreateRecord(ctx, domain.CollectionFacturacion, payload); err != nil {
			emit("  warning: facturacion for %s not created: %v", memberName(rec), err)
		}
	}

	return afiliada, nil
}

// resolveBloque returns the building id for the record: a carried id is
// verified remotely, an address is looked up and created on miss, and a
// record with neither legitimately has no building.
func (e *Executor) resolveBloque(ctx context.Context, rec *domain.DraftRecord) (*int64, error) {
	if rec.Piso.BloqueID != nil {
		id := *rec.Piso.BloqueID
		if e.verifiedBloques[id] {
			return &id, nil
		}
		rows, err := e.store.GetRecords(ctx, domain.CollectionBloques,
			restclient.Filters{"id": restclient.EqInt(id)}, restclient.WithLimit(1))
		if err != nil {
			return nil, fmt.Errorf("verify bloque %d: %w", id, err)
		}
		if len(rows) == 0 {
			return nil, fmt.Errorf("bloque %d does not exist", id)
		}
		e.verifiedBloques[id] = true
		return &id, nil
	}

	if rec.Bloque.Direccion == "" {
		return nil, nil
	}

	rows, err := e.store.GetRecords(ctx, domain.CollectionBloques,
		restclient.Filters{"direccion": restclient.Eq(rec.Bloque.Direccion)}, restclient.WithLimit(1))
	if err != nil {
		return nil, fmt.Errorf("lookup bloque: %w", err)
	}
	if len(rows) > 0 {
		id := recordID(rows[0])
		e.verifiedBloques[id] = true
		return &id, nil
	}

	created, err := e.store.CreateRecord(ctx, domain.CollectionBloques, rec.Bloque.Fields())
	if err != nil {
		return nil, fmt.Errorf("create bloque: %w", err)
	}
	id := recordID(created)
	e.verifiedBloques[id] = true
	return &id, nil
}

// resolvePiso reuses a residence found by exact address match, relinking it
// to the resolved building when they differ (last writer wins), and creates
// a new residence otherwise.
func (e *Executor) resolvePiso(ctx context.Context, rec *domain.DraftRecord, bloqueID *int64, emit func(string, ...any)) (int64, error) {
	rows, err := e.store.GetRecords(ctx, domain.CollectionPisos,
		restclient.Filters{"direccion": restclient.Eq(rec.Piso.Direccion)}, restclient.WithLimit(1))
	if err != nil {
		return 0, fmt.Errorf("lookup piso: %w", err)
	}

	if len(rows) > 0 {
		existing := rows[0]
		id := recordID(existing)
		if bloqueID != nil && recordRefID(existing, "bloque_id") != *bloqueID {
			if _, err := e.store.UpdateRecord(ctx, domain.CollectionPisos, id, map[string]any{"bloque_id": *bloqueID}); err != nil {
				emit("  warning: piso %d not relinked to bloque %d: %v", id, *bloqueID, err)
			} else {
				emit("  relinked piso %d to bloque %d", id, *bloqueID)
			}
		}
		return id, nil
	}

	payload := rec.Piso.Fields()
	if bloqueID != nil {
		payload["bloque_id"] = *bloqueID
	} else {
		payload["bloque_id"] = nil
	}
	created, err := e.store.CreateRecord(ctx, domain.CollectionPisos, payload)
	if err != nil {
		return 0, fmt.Errorf("create piso: %w", err)
	}
	return recordID(created), nil
}

// createdName renders the member name from a store representation, which may
// omit optional fields such as apellidos.
func createdName(record map[string]any) string {
	name, _ := record["nombre"].(string)
	if apellidos, ok := record["apellidos"].(string); ok && apellidos != "" {
		name += " " + apellidos
	}
	return name
}

func memberName(rec *domain.DraftRecord) string {
	name := rec.Afiliada.Nombre
	if rec.Afiliada.Apellidos != "" {
		name += " " + rec.Afiliada.Apellidos
	}
	return name
}

// recordID extracts the numeric id of a store record. JSON numbers decode as
// float64.
func recordID(record map[string]any) int64 {
	return recordRefID(record, "id")
}

func recordRefID(record map[string]any, field string) int64 {
	switch v := record[field].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return 0
	}
}
