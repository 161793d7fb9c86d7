package response

import (
	"encoding/json"
	"net/http"
)

type envelope struct {
	Data any `json:"data"`
}

type collectionEnvelope struct {
	Data any            `json:"data"`
	Meta PaginationMeta `json:"meta"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// PaginationMeta describes one page of a collection.
type PaginationMeta struct {
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	Total   int  `json:"total"`
	HasNext bool `json:"has_next"`
}

// JSON writes data in the {"data": ...} envelope.
func JSON(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Data: data})
}

func Created(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusCreated, envelope{Data: data})
}

func Collection(w http.ResponseWriter, data any, meta PaginationMeta) {
	writeJSON(w, http.StatusOK, collectionEnvelope{Data: data, Meta: meta})
}

// Paginate writes the page of items selected by page (1-based) and limit.
// A page past the end is an empty array, never null.
func Paginate[T any](w http.ResponseWriter, items []T, page, limit int) {
	page = max(page, 1)
	limit = max(limit, 1)

	start := min((page-1)*limit, len(items))
	end := min(start+limit, len(items))
	slice := items[start:end]
	if slice == nil {
		slice = []T{}
	}
	Collection(w, slice, PaginationMeta{
		Page:    page,
		Limit:   limit,
		Total:   len(items),
		HasNext: end < len(items),
	})
}

// Bare writes v without the data envelope. Job clock endpoints use it so
// timer clients read fields at the top level.
func Bare(w http.ResponseWriter, v any) {
	writeJSON(w, http.StatusOK, v)
}

// NoContent writes an empty 204.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func Error(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{
		Code:    code,
		Message: message,
		Details: details,
	}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
