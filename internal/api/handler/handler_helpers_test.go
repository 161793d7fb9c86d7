package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/jobclock/internal/api/middleware"
	"github.com/stretchr/testify/require"
)

// caller is the identity a test request is made as. A nil technician means
// the request carries no identity at all.
type caller struct {
	technician *uuid.UUID
	scopes     []string
}

func as(id uuid.UUID, scopes ...string) caller {
	return caller{technician: &id, scopes: scopes}
}

var anonymous = caller{}

// serve routes a single request through pattern so chi URL params resolve.
func serve(t *testing.T, h http.HandlerFunc, method, pattern, path string, body any, c caller) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := req.Context()
			if c.technician != nil {
				ctx = mw.SetTechnicianID(ctx, *c.technician)
			}
			ctx = mw.SetScopes(ctx, c.scopes)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.MethodFunc(method, pattern, h)

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	errObj, ok := decode(t, rec)["error"].(map[string]any)
	require.True(t, ok, "expected error envelope, got %s", rec.Body.String())
	return errObj["code"].(string)
}

func mustMarshal(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}
