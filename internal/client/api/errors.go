package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/and161185/retail-desk/internal/errs"
)

// Kind classifies a failed call.
type Kind int

const (
	// KindTransport means no response reached the client.
	KindTransport Kind = iota + 1
	// KindClient is an HTTP 4xx.
	KindClient
	// KindServer is an HTTP 5xx.
	KindServer
	// KindPrecondition is a local check that stopped the call before it was sent.
	KindPrecondition
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindClient:
		return "client"
	case KindServer:
		return "server"
	case KindPrecondition:
		return "precondition"
	}
	return "unknown"
}

// fallbackMessage is shown when nothing better can be extracted.
const fallbackMessage = "API Error"

// APIError is the single error type returned by Client. Message is always non-empty.
type APIError struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *APIError) Error() string { return e.Message }

// Unwrap exposes the cause and the sentinel matching Status.
func (e *APIError) Unwrap() []error {
	var out []error
	if e.Err != nil {
		out = append(out, e.Err)
	}
	switch e.Status {
	case http.StatusUnauthorized:
		out = append(out, errs.ErrUnauthorized)
	case http.StatusForbidden:
		out = append(out, errs.ErrForbidden)
	case http.StatusNotFound:
		out = append(out, errs.ErrNotFound)
	case http.StatusConflict:
		out = append(out, errs.ErrAlreadyExists)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		out = append(out, errs.ErrValidation)
	case http.StatusTooManyRequests:
		out = append(out, errs.ErrRateLimited)
	}
	return out
}

func preconditionError(cause error) *APIError {
	return &APIError{Kind: KindPrecondition, Message: cause.Error(), Err: cause}
}

func transportError(err error) *APIError {
	return &APIError{Kind: KindTransport, Message: ExtractMessage(nil, err), Err: err}
}

func statusError(status int, body []byte) *APIError {
	kind := KindClient
	if status >= 500 {
		kind = KindServer
	}
	var fallback error
	if t := http.StatusText(status); t != "" {
		fallback = fmt.Errorf("%d %s", status, t)
	}
	return &APIError{Kind: kind, Status: status, Message: ExtractMessage(body, fallback)}
}

// ExtractMessage derives a human-readable message from an error body. It tries, in order:
// a plain-string body, message/error/title/detail, an errors array, an errors map, the
// transport error text, and finally "API Error".
func ExtractMessage(body []byte, transportErr error) string {
	if msg := messageFromBody(bytes.TrimSpace(body)); msg != "" {
		return msg
	}
	if transportErr != nil && transportErr.Error() != "" {
		return transportErr.Error()
	}
	return fallbackMessage
}

func messageFromBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return string(body)
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		return messageFromObject(t)
	case []any:
		return joinEntries(t)
	}
	return ""
}

func messageFromObject(obj map[string]any) string {
	for _, k := range []string{"message", "error", "title", "detail"} {
		if s, ok := obj[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	switch e := obj["errors"].(type) {
	case []any:
		return joinEntries(e)
	case map[string]any:
		fields := make([]string, 0, len(e))
		for f := range e {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		parts := make([]string, 0, len(fields))
		for _, f := range fields {
			var vs []string
			switch vv := e[f].(type) {
			case []any:
				for _, x := range vv {
					if s := entryText(x); s != "" {
						vs = append(vs, s)
					}
				}
			default:
				if s := entryText(vv); s != "" {
					vs = append(vs, s)
				}
			}
			if len(vs) > 0 {
				parts = append(parts, f+": "+strings.Join(vs, ", "))
			}
		}
		return strings.Join(parts, ", ")
	}
	return ""
}

func joinEntries(list []any) string {
	parts := make([]string, 0, len(list))
	for _, it := range list {
		if s := entryText(it); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

func entryText(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		for _, k := range []string{"message", "defaultMessage"} {
			if s, ok := t[k].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}
