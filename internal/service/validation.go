package service

import (
	"sort"
	"strings"

	"github.com/and161185/retail-desk/internal/errs"
)

// FieldErrors collects per-field validation messages. It unwraps to errs.ErrValidation.
type FieldErrors map[string][]string

// Add appends msg to field.
func (f FieldErrors) Add(field, msg string) { f[field] = append(f[field], msg) }

// Err returns f as an error, or nil when no field failed.
func (f FieldErrors) Err() error {
	if len(f) == 0 {
		return nil
	}
	return f
}

func (f FieldErrors) Error() string { return "validation: " + f.Summary() }

// Summary flattens f into "field: msg, msg; field: msg" with fields sorted.
func (f FieldErrors) Summary() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(f[k], ", "))
	}
	return strings.Join(parts, "; ")
}

func (f FieldErrors) Unwrap() error { return errs.ErrValidation }
