package supabase

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// ============================================================
// Response helpers
// ============================================================

// statusError is a non-2xx PostgREST answer. Code carries the PostgreSQL
// SQLSTATE when the body has one.
type statusError struct {
	Method string
	Status int
	Code   string
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("supabase %s returned %d: %s", e.Method, e.Status, e.Body)
}

func newStatusError(method string, status int, body []byte) *statusError {
	se := &statusError{Method: method, Status: status, Body: string(body)}
	var pgErr struct {
		Code string `json:"code"`
	}
	if json.Unmarshal(body, &pgErr) == nil {
		se.Code = pgErr.Code
	}
	return se
}

func (e *statusError) conflict() bool {
	return e.Status == http.StatusConflict || e.Code == "23505"
}

// eq builds a PostgREST equality filter.
func eq(column, value string) string {
	return column + "=eq." + url.QueryEscape(value)
}

func readBody(resp *http.Response) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
