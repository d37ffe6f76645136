// Package validation implements the schema-driven field validator used by
// the row parser and by operator edits. The schema is injected per session;
// every check accumulates rather than short-circuiting.
package validation

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/avergara/uniondb/internal/domain"
)

// Operation distinguishes create-time from update-time validation. Required
// fields are only enforced on create.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
)

var (
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

	dateTokens = []string{"fecha", "date"}
)

// Engine validates entity field maps against an injected schema.
type Engine struct {
	schema domain.Schema
}

// New creates a validation engine bound to the given schema.
func New(schema domain.Schema) *Engine {
	return &Engine{schema: schema}
}

// Validate checks the field map of one entity kind and returns overall
// validity plus the ordered list of human-readable errors. It never stops at
// the first failure.
func (e *Engine) Validate(kind string, fields map[string]any, op Operation) (bool, []string) {
	table, ok := e.schema[kind]
	if !ok {
		return false, []string{fmt.Sprintf("unknown entity kind %q", kind)}
	}

	var errs []string

	for _, field := range sortedKeys(fields) {
		value := fields[field]
		if isEmpty(value) {
			continue
		}

		if options, ok := table.Enums[field]; ok {
			if !enumAllows(options, value) {
				errs = append(errs, fmt.Sprintf("%s: field %s must be one of [%s]", kind, field, strings.Join(options, ", ")))
			}
			continue
		}

		if isRelationship(table, field) {
			// Relationship values are only checked for non-emptiness; the
			// executor resolves actual existence.
			continue
		}

		if msg := checkHeuristic(kind, field, value); msg != "" {
			errs = append(errs, msg)
		}
	}

	if op == OpCreate {
		for _, field := range table.Required {
			if isEmpty(fields[field]) {
				errs = append(errs, fmt.Sprintf("%s: field %s is required", kind, field))
			}
		}
	}

	return len(errs) == 0, errs
}

// checkHeuristic applies the type checks keyed off field-name convention.
func checkHeuristic(kind, field string, value any) string {
	name := strings.ToLower(field)

	if strings.Contains(name, "email") {
		if s, ok := value.(string); !ok || !emailPattern.MatchString(s) {
			return fmt.Sprintf("%s: field %s is not a valid email address", kind, field)
		}
		return ""
	}

	for _, token := range dateTokens {
		if strings.Contains(name, token) {
			if !looksLikeDate(value) {
				return fmt.Sprintf("%s: field %s is not a valid date", kind, field)
			}
			return ""
		}
	}

	if strings.HasSuffix(name, "_id") {
		if !coercibleToInt(value) {
			return fmt.Sprintf("%s: field %s must be an integer id", kind, field)
		}
	}

	return ""
}

func looksLikeDate(value any) bool {
	s, ok := value.(string)
	if !ok {
		_, isTime := value.(time.Time)
		return isTime
	}
	s = strings.TrimSpace(s)
	if _, err := time.Parse("2006-01-02", s); err == nil {
		return true
	}
	if _, err := time.Parse(time.RFC3339, s); err == nil {
		return true
	}
	return false
}

func coercibleToInt(value any) bool {
	switch v := value.(type) {
	case int, int32, int64:
		return true
	case float64:
		return v == float64(int64(v))
	case string:
		_, err := strconv.Atoi(strings.TrimSpace(v))
		return err == nil
	default:
		return false
	}
}

func enumAllows(options []string, value any) bool {
	s, ok := value.(string)
	if !ok {
		return false
	}
	for _, opt := range options {
		if s == opt {
			return true
		}
	}
	return false
}

func isRelationship(table domain.TableSchema, field string) bool {
	for _, rel := range table.Relationships {
		if rel == field {
			return true
		}
	}
	return false
}

func isEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	default:
		return false
	}
}

// sortedKeys keeps error ordering deterministic across runs.
func sortedKeys(fields map[string]any) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
