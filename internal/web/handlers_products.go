package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/JonMunkholm/catalogimport/internal/catalog"
	"github.com/JonMunkholm/catalogimport/internal/commit"
	"github.com/JonMunkholm/catalogimport/internal/storage/postgres"
)

// maxBodyBytes bounds a create request body.
const maxBodyBytes = 1 << 20

var errNotCommitted = errors.New("record was not committed")

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Products.Ping(r.Context()); err != nil {
		respondError(w, r, err, http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	recs, err := s.deps.Products.List(r.Context())
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	if recs == nil {
		recs = []catalog.Record{}
	}
	writeJSON(w, r, http.StatusOK, recs)
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "productId")

	rec, err := s.deps.Products.Get(r.Context(), id)
	if errors.Is(err, postgres.ErrNotFound) {
		respondError(w, r, err, http.StatusNotFound)
		return
	}
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, r, http.StatusOK, rec)
}

// handleCreateProduct validates the body, assigns a fresh id and commits the
// record through the same coordinator the queue worker uses. Any id in the
// body is ignored.
func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, r, fmt.Errorf("%w: %w", catalog.ErrMalformedJSON, err), http.StatusBadRequest)
		return
	}

	rec, err := catalog.Decode(body)
	if err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}
	if err := catalog.Validate(rec, false); err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}

	rec.ID = uuid.New().String()

	outcome, err := s.deps.Commits.CommitErr(r.Context(), rec)
	if outcome != commit.Committed {
		if err == nil {
			err = fmt.Errorf("%w: %s", errNotCommitted, outcome)
		}
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, r, http.StatusCreated, rec)
}
