package web

import (
	"fmt"
	"net/http"
	"path"
	"strings"
)

// csvContentType is signed into upload URLs; the client must send it on PUT.
const csvContentType = "text/csv"

// handleImportURL returns a presigned PUT URL for uploaded/<name> as plain
// text.
func (s *Server) handleImportURL(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		respondError(w, r, errMissingName, http.StatusBadRequest)
		return
	}
	if name != path.Base(name) || name == "." || name == ".." {
		respondError(w, r, fmt.Errorf("%w: %q", errInvalidName, name), http.StatusBadRequest)
		return
	}

	key := s.cfg.Storage.UploadPrefix + name
	u, err := s.deps.Uploads.PresignPut(r.Context(), key, s.cfg.Storage.PresignExpiry, csvContentType)
	if err != nil {
		respondError(w, r, fmt.Errorf("%w: %w", errPresignFailed, err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(u.String()))
}
