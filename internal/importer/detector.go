package importer

import (
	"context"
	"fmt"

	"github.com/avergara/uniondb/internal/domain"
	"github.com/avergara/uniondb/internal/restclient"
	"github.com/avergara/uniondb/pkg/normalize"
)

// DefaultChunkSize bounds how many values one batched existence query carries.
const DefaultChunkSize = 30

// Detector answers "does this member identifier / residence address already
// exist remotely" without one round trip per row. Preload seeds a per-session
// cache with batched queries; Ensure covers values first seen afterwards.
//
// Identifiers compare by the uppercase whitespace-free key; addresses by the
// accent- and case-insensitive normalized key. The remote store compares its
// text columns with an equally insensitive collation, so every query carries
// the caller's value unmodified and matches are keyed locally by normalized
// key.
type Detector struct {
	store     Store
	chunkSize int

	cif       map[string]bool
	direccion map[string]bool
}

// NewDetector creates a detector with empty caches. One detector is scoped
// to one import session.
func NewDetector(store Store, chunkSize int) *Detector {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Detector{
		store:     store,
		chunkSize: chunkSize,
		cif:       make(map[string]bool),
		direccion: make(map[string]bool),
	}
}

// Preload gathers the distinct non-empty identifiers and addresses across
// the batch, seeds the caches to false, flips confirmed matches to true via
// chunked remote queries, and stamps the duplicate flags on every record.
// Chunks are issued sequentially to keep cache population deterministic.
func (d *Detector) Preload(ctx context.Context, records []*domain.DraftRecord) error {
	cifValues := make(map[string]string)
	direccionValues := make(map[string]string)

	for _, rec := range records {
		if key := normalize.IdentifierKey(rec.Afiliada.CIF); key != "" {
			d.cif[key] = false
			cifValues[key] = rec.Afiliada.CIF
		}
		if key := normalize.AddressKey(rec.Piso.Direccion); key != "" {
			d.direccion[key] = false
			direccionValues[key] = rec.Piso.Direccion
		}
	}

	if err := d.preloadField(ctx, domain.CollectionAfiliadas, "cif", rawValues(cifValues), d.markCIF); err != nil {
		return err
	}
	if err := d.preloadField(ctx, domain.CollectionPisos, "direccion", rawValues(direccionValues), d.markDireccion); err != nil {
		return err
	}

	for _, rec := range records {
		rec.Meta.DuplicateCIF = d.cif[normalize.IdentifierKey(rec.Afiliada.CIF)]
		rec.Meta.DuplicateDireccion = d.direccion[normalize.AddressKey(rec.Piso.Direccion)]
	}
	return nil
}

func (d *Detector) preloadField(ctx context.Context, collection, field string, values []string, mark func(string)) error {
	for _, chunk := range normalize.Chunk(values, d.chunkSize) {
		rows, err := d.store.GetRecords(ctx, collection, restclient.Filters{field: restclient.In(chunk)})
		if err != nil {
			return fmt.Errorf("preload %s.%s: %w", collection, field, err)
		}
		for _, row := range rows {
			if value, ok := row[field].(string); ok {
				mark(value)
			}
		}
	}
	return nil
}

func (d *Detector) markCIF(value string) {
	key := normalize.IdentifierKey(value)
	if _, seeded := d.cif[key]; seeded {
		d.cif[key] = true
	}
}

func (d *Detector) markDireccion(value string) {
	key := normalize.AddressKey(value)
	if _, seeded := d.direccion[key]; seeded {
		d.direccion[key] = true
	}
}

// EnsureCIF reports whether the identifier exists remotely, preferring the
// cache and falling back to a single remote lookup for values never seen by
// Preload.
func (d *Detector) EnsureCIF(ctx context.Context, value string) (bool, error) {
	key := normalize.IdentifierKey(value)
	if key == "" {
		return false, nil
	}
	if exists, ok := d.cif[key]; ok {
		return exists, nil
	}

	rows, err := d.store.GetRecords(ctx, domain.CollectionAfiliadas,
		restclient.Filters{"cif": restclient.Eq(value)}, restclient.WithLimit(1))
	if err != nil {
		return false, fmt.Errorf("ensure cif: %w", err)
	}
	d.cif[key] = len(rows) > 0
	return d.cif[key], nil
}

// EnsureDireccion reports whether the address exists remotely, with the same
// cache-then-lookup behavior as EnsureCIF.
func (d *Detector) EnsureDireccion(ctx context.Context, value string) (bool, error) {
	key := normalize.AddressKey(value)
	if key == "" {
		return false, nil
	}
	if exists, ok := d.direccion[key]; ok {
		return exists, nil
	}

	rows, err := d.store.GetRecords(ctx, domain.CollectionPisos,
		restclient.Filters{"direccion": restclient.Eq(value)}, restclient.WithLimit(1))
	if err != nil {
		return false, fmt.Errorf("ensure direccion: %w", err)
	}
	d.direccion[key] = len(rows) > 0
	return d.direccion[key], nil
}

// MarkUnknownCIF drops the identifier from the cache so the next Ensure call
// takes the lazy remote path instead of assuming absence.
func (d *Detector) MarkUnknownCIF(value string) {
	delete(d.cif, normalize.IdentifierKey(value))
}

// MarkUnknownDireccion drops the address from the cache so the next Ensure
// call takes the lazy remote path instead of assuming absence.
func (d *Detector) MarkUnknownDireccion(value string) {
	delete(d.direccion, normalize.AddressKey(value))
}

func rawValues(byKey map[string]string) []string {
	values := make([]string, 0, len(byKey))
	for _, raw := range byKey {
		values = append(values, raw)
	}
	return values
}
