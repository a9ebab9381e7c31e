// Package params decodes JSON-RPC method parameters.
package params

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/sharesphere/spherecore/internal/apperr"
)

// Page is the paging part of listing parameters
type Page struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// Decode unmarshals named parameters into dst. Absent parameters leave dst zero.
func Decode(raw json.RawMessage, dst interface{}) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if raw[0] != '{' {
		return apperr.Validationf("invalid parameters format: expected an object")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return apperr.Wrap(apperr.KindValidation, err, "invalid parameters format")
	}
	return nil
}

// Missing reports an absent required parameter
func Missing(name string) error {
	return apperr.Validationf("missing required parameter: %s", name)
}

// NullInt converts an optional id
func NullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

// NullTime converts an optional timestamp
func NullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
