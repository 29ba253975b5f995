package utilities

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ovaphlow/pitchfork/service-user-go/pkg/database"
)

// MaxBodyBytes bounds JSON request bodies.
const MaxBodyBytes = 1 << 20

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorBody{Error: msg})
}

// WriteValidation answers 400 with the offending fields.
func WriteValidation(w http.ResponseWriter, err *ValidationError) {
	WriteJSON(w, http.StatusBadRequest, ErrorBody{Error: "validation failed", Fields: err.Fields})
}

// DecodeJSON reads one JSON value from r into dst and validates it.
// Malformed bodies come back as *ValidationError.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		var syntax *json.SyntaxError
		var typ *json.UnmarshalTypeError
		switch {
		case errors.Is(err, io.EOF):
			return NewValidationError("body", "is required")
		case errors.As(err, &typ):
			return NewValidationError(typ.Field, "has the wrong type")
		case errors.As(err, &syntax):
			return NewValidationError("body", fmt.Sprintf("malformed JSON at offset %d", syntax.Offset))
		default:
			return NewValidationError("body", err.Error())
		}
	}
	return Validate(dst)
}

// PageParams reads the zero-based "page" and "size" query parameters.
// Missing values are left at zero for the storage layer to default.
func PageParams(q url.Values) (page, size int, err error) {
	if page, err = intParam(q, "page"); err != nil {
		return 0, 0, err
	}
	if page > database.MaxPage {
		return 0, 0, NewValidationError("page", "is too large")
	}
	if size, err = intParam(q, "size"); err != nil {
		return 0, 0, err
	}
	return page, size, nil
}

func intParam(q url.Values, name string) (int, error) {
	raw := q.Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, NewValidationError(name, "must be a non-negative integer")
	}
	return n, nil
}
