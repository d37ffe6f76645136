package importer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/avergara/uniondb/internal/domain"
	"github.com/avergara/uniondb/internal/restclient"
)

func csvFor(rows ...[]string) []byte {
	var b strings.Builder
	b.WriteString("header\n")
	for _, row := range rows {
		quoted := make([]string, len(row))
		for i, v := range row {
			quoted[i] = `"` + v + `"`
		}
		b.WriteString(strings.Join(quoted, ","))
		b.WriteString("\n")
	}
	return []byte(b.String())
}

func namedRow(nombre, cif string) []string {
	row := sampleRow()
	row[colNombre] = nombre
	row[colCIF] = cif
	return row
}

func TestCreateSessionRunsFullPipeline(t *testing.T) {
	store := newStubStore()
	store.seed(domain.CollectionAfiliadas, map[string]any{"cif": "B12345678"})
	store.candidates = []restclient.Suggestion{
		{Index: 0, BloqueID: 42, BloqueDireccion: "Calle Mayor 5", Score: 0.9},
	}

	service := NewService(store, domain.DefaultSchema(), 30, 0.8)
	session, err := service.CreateSession(context.Background(), "export.csv",
		csvFor(namedRow("María", "B12345678"), namedRow("Eva", "Z00000000")), nil)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	records := session.Records()
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if !records[0].Meta.DuplicateCIF {
		t.Fatalf("expected duplicate flag on first record")
	}
	if records[1].Meta.DuplicateCIF {
		t.Fatalf("unexpected duplicate flag on second record")
	}
	if records[0].Meta.Suggested == nil || records[0].Meta.Suggested.BloqueID != 42 {
		t.Fatalf("expected building suggestion applied, got %+v", records[0].Meta)
	}

	fetched, err := service.Get(session.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if fetched.ID != session.ID {
		t.Fatalf("registry returned wrong session")
	}
}

func TestSessionSetThresholdSupersedesSuggestions(t *testing.T) {
	store := newStubStore()
	store.candidates = []restclient.Suggestion{
		{Index: 0, BloqueID: 42, BloqueDireccion: "Calle Mayor 42", Score: 0.7},
	}

	service := NewService(store, domain.DefaultSchema(), 30, 0.6)
	session, err := service.CreateSession(context.Background(), "export.csv",
		csvFor(namedRow("María", "B12345678")), nil)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	if rec := session.Records()[0]; rec.Meta.Suggested == nil {
		t.Fatalf("expected suggestion at default threshold")
	}

	if err := session.SetThreshold(context.Background(), 0.9); err != nil {
		t.Fatalf("set threshold: %v", err)
	}
	rec := session.Records()[0]
	if rec.Meta.Suggested != nil || rec.Piso.BloqueID != nil {
		t.Fatalf("expected suggestion withdrawn at higher threshold, got %+v", rec.Meta)
	}
	if session.Threshold() != 0.9 {
		t.Fatalf("threshold not stored")
	}
}

func TestSessionThresholdRefreshConcurrentWithEdits(t *testing.T) {
	store := newStubStore()
	store.candidates = []restclient.Suggestion{
		{Index: 0, BloqueID: 42, BloqueDireccion: "Calle Mayor 42", Score: 0.7},
	}

	service := NewService(store, domain.DefaultSchema(), 30, 0.6)
	session, err := service.CreateSession(context.Background(), "export.csv",
		csvFor(namedRow("María", "B12345678")), nil)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	// Threshold refreshes and operator edits arrive from separate HTTP
	// requests; both mutate the same drafts.
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		threshold := 0.6
		if i%2 == 0 {
			threshold = 0.9
		}
		wg.Add(2)
		go func(th float64) {
			defer wg.Done()
			// A superseded refresh legitimately returns context.Canceled.
			_ = session.SetThreshold(context.Background(), th)
		}(threshold)
		go func() {
			defer wg.Done()
			edited := session.Records()[0]
			if _, err := session.UpdateRecord(context.Background(), 0, edited); err != nil {
				t.Errorf("update: %v", err)
			}
		}()
	}
	wg.Wait()

	// A final refresh above the candidate score must settle on baseline state
	// regardless of how the concurrent phase interleaved.
	if err := session.SetThreshold(context.Background(), 0.9); err != nil {
		t.Fatalf("final set threshold: %v", err)
	}
	rec := session.Records()[0]
	if rec.Meta.Suggested != nil || rec.Piso.BloqueID != nil {
		t.Fatalf("expected baseline state after final refresh, got %+v link %v", rec.Meta.Suggested, rec.Piso.BloqueID)
	}
}

func TestSessionUpdateRecordEnforcesOverrideInvariant(t *testing.T) {
	store := newStubStore()
	service := NewService(store, domain.DefaultSchema(), 30, 0.8)
	session, err := service.CreateSession(context.Background(), "export.csv",
		csvFor(namedRow("María", "B12345678")), nil)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	edited := session.Records()[0]
	linkID := int64(7)
	edited.Piso.BloqueID = &linkID
	edited.Meta.ManualOverride = &domain.BuildingOverride{BloqueID: 7, Direccion: "Calle Elegida 1"}

	updated, err := session.UpdateRecord(context.Background(), 0, edited)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Meta.ManualOverride == nil {
		t.Fatalf("expected override to survive while link matches")
	}

	// Clearing the link must clear the override.
	edited = updated
	edited.Piso.BloqueID = nil
	updated, err = session.UpdateRecord(context.Background(), 0, edited)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Meta.ManualOverride != nil {
		t.Fatalf("expected override cleared with its link")
	}
}

func TestSessionUpdateRecordRevalidatesAndRefreshesDuplicates(t *testing.T) {
	store := newStubStore()
	service := NewService(store, domain.DefaultSchema(), 30, 0.8)
	session, err := service.CreateSession(context.Background(), "export.csv",
		csvFor(namedRow("María", "B12345678")), nil)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	// A member with this identifier appears remotely after the preload.
	store.seed(domain.CollectionAfiliadas, map[string]any{"cif": "Z11111111"})

	edited := session.Records()[0]
	edited.Afiliada.CIF = "z11111111"
	edited.Afiliada.Email = "broken"

	updated, err := session.UpdateRecord(context.Background(), 0, edited)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Validation.Valid {
		t.Fatalf("expected re-validation to fail on bad email")
	}
	if !updated.Meta.DuplicateCIF {
		t.Fatalf("expected lazy duplicate check to flag the new identifier")
	}
}

func TestCreateSessionReportsSuggestionOutage(t *testing.T) {
	store := newStubStore()
	store.suggestErr = errors.New("matcher down")

	service := NewService(store, domain.DefaultSchema(), 30, 0.8)
	session, err := service.CreateSession(context.Background(), "export.csv",
		csvFor(namedRow("María", "B12345678")), nil)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if !session.SuggestionsUnavailable() {
		t.Fatalf("expected session flagged after matcher failure")
	}

	// A later successful refresh clears the flag.
	store.suggestErr = nil
	if err := session.SetThreshold(context.Background(), 0.8); err != nil {
		t.Fatalf("set threshold: %v", err)
	}
	if session.SuggestionsUnavailable() {
		t.Fatalf("expected flag cleared after successful refresh")
	}
}

func TestSessionExecuteSkipsInvalidRows(t *testing.T) {
	store := newStubStore()
	service := NewService(store, domain.DefaultSchema(), 30, 0.8)

	invalid := namedRow("Berta", "")
	session, err := service.CreateSession(context.Background(), "export.csv",
		csvFor(namedRow("María", "B12345678"), invalid), nil)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	result := session.Execute(context.Background(), nil)
	if result.Total != 1 || result.Success != 1 {
		t.Fatalf("expected only the valid row to run, got %+v", result)
	}
}
