package web

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/JonMunkholm/CRM/internal/ingest"
	"github.com/go-chi/chi/v5/middleware"
)

// handleImport accepts a multipart customer file upload, runs the
// batch synchronously, and returns the per-row outcome report.
//
// A fatal ingestion failure maps to 422 with nothing persisted. A
// completed batch always returns 200, even when every row was
// rejected; the report's summary tells the two apart.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		writeError(w, r, http.StatusBadRequest, errors.New("file too large or invalid form"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, errors.New("no file provided"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, errors.New("could not read upload"))
		return
	}

	report, err := s.importer.Ingest(r.Context(), ingest.Params{
		FileName:      header.Filename,
		CorrelationID: middleware.GetReqID(r.Context()),
		Data:          data,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// handleImportHistory lists recent import batches, most recent first.
func (s *Server) handleImportHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	batches, err := s.dir.ListBatches(r.Context(), limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"imports": batches})
}
