package importer

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/avergara/uniondb/internal/restclient"
	"github.com/avergara/uniondb/pkg/normalize"
)

// stubStore is an in-memory stand-in for the remote data store. It keeps one
// record slice per collection and interprets the eq./in.(...) filter dialect
// just far enough for the pipeline's queries.
type stubStore struct {
	mu          sync.Mutex
	collections map[string][]map[string]any
	nextID      int64

	getCalls    map[string]int
	lastGet     map[string]restclient.Filters
	createErr   map[string]error
	updateErr   map[string]error
	updateCalls []string

	candidates   []restclient.Suggestion
	suggestErr   error
	suggestCalls int
	suggestBlock bool
}

func newStubStore() *stubStore {
	return &stubStore{
		collections: make(map[string][]map[string]any),
		getCalls:    make(map[string]int),
		lastGet:     make(map[string]restclient.Filters),
		createErr:   make(map[string]error),
		updateErr:   make(map[string]error),
	}
}

func (s *stubStore) seed(collection string, record map[string]any) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	record["id"] = float64(s.nextID)
	s.collections[collection] = append(s.collections[collection], record)
	return record
}

func (s *stubStore) count(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.collections[collection])
}

func (s *stubStore) GetRecords(ctx context.Context, collection string, filters restclient.Filters, opts ...restclient.QueryOption) ([]map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls[collection]++
	s.lastGet[collection] = filters

	var out []map[string]any
	for _, record := range s.collections[collection] {
		if matchesFilters(record, filters) {
			out = append(out, record)
		}
	}
	return out, nil
}

func (s *stubStore) CreateRecord(ctx context.Context, collection string, payload map[string]any) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.createErr[collection]; err != nil {
		return nil, err
	}

	record := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		record[k] = v
	}
	s.nextID++
	record["id"] = float64(s.nextID)
	s.collections[collection] = append(s.collections[collection], record)
	return record, nil
}

func (s *stubStore) UpdateRecord(ctx context.Context, collection string, id int64, payload map[string]any) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateCalls = append(s.updateCalls, fmt.Sprintf("%s/%d", collection, id))
	if err := s.updateErr[collection]; err != nil {
		return nil, err
	}

	for _, record := range s.collections[collection] {
		if int64(record["id"].(float64)) == id {
			for k, v := range payload {
				record[k] = v
			}
			return record, nil
		}
	}
	return nil, restclient.ErrNotFound
}

// GetBloqueSuggestions returns the configured candidates whose score reaches
// the threshold, mimicking the remote RPC contract.
func (s *stubStore) GetBloqueSuggestions(ctx context.Context, queries []restclient.AddressQuery, threshold float64) ([]restclient.Suggestion, error) {
	s.mu.Lock()
	blocked := s.suggestBlock
	s.suggestCalls++
	s.mu.Unlock()

	if blocked {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.suggestErr != nil {
		return nil, s.suggestErr
	}

	queried := make(map[int]bool, len(queries))
	for _, q := range queries {
		queried[q.Index] = true
	}

	var out []restclient.Suggestion
	for _, c := range s.candidates {
		if queried[c.Index] && c.Score >= threshold {
			out = append(out, c)
		}
	}
	return out, nil
}

func matchesFilters(record map[string]any, filters restclient.Filters) bool {
	for field, expr := range filters {
		switch {
		case strings.HasPrefix(expr, "eq."):
			want := strings.TrimPrefix(expr, "eq.")
			if !equalsLiteral(record[field], want) {
				return false
			}
		case strings.HasPrefix(expr, "in.(") && strings.HasSuffix(expr, ")"):
			values := splitInList(strings.TrimSuffix(strings.TrimPrefix(expr, "in.("), ")"))
			found := false
			for _, want := range values {
				if equalsLiteral(record[field], want) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// equalsLiteral mirrors the store's case- and accent-insensitive text
// collation.
func equalsLiteral(value any, want string) bool {
	switch v := value.(type) {
	case nil:
		return want == ""
	case float64:
		return fmt.Sprintf("%d", int64(v)) == want
	default:
		return normalize.AddressKey(fmt.Sprint(v)) == normalize.AddressKey(want)
	}
}

// splitInList undoes the quote-escaping applied by restclient.In.
func splitInList(raw string) []string {
	var values []string
	var current strings.Builder
	inQuotes := false
	escaped := false

	for _, r := range raw {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == '"':
			inQuotes = !inQuotes
		case r == ',' && !inQuotes:
			values = append(values, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 {
		values = append(values, current.String())
	}
	return values
}
