package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"ragvault/internal/adapter/store"
	"ragvault/internal/domain"
	"ragvault/internal/usecase"
)

// multipart framing allowance on top of the file size limit
const uploadOverhead = 1 << 20

// RegisterDocumentRoutes mounts upload, status, search and list endpoints under /documents.
func RegisterDocumentRoutes(r chi.Router, pipeline *usecase.IngestPipeline, search *usecase.SearchUseCase, st *store.VectorStore, maxUpload int64) {
	r.Route("/documents", func(r chi.Router) {
		r.Post("/upload", handleUpload(pipeline, maxUpload))
		r.Get("/status/{id}", handleStatus(pipeline))
		r.Post("/search", handleSearch(search))
		r.Get("/list", handleList(st))
	})
}

// RegisterQARoutes mounts the question answering endpoint.
func RegisterQARoutes(r chi.Router, search *usecase.SearchUseCase) {
	r.Post("/qa/ask", handleAsk(search))
}

// RegisterBackupRoutes mounts backup management under /backups.
func RegisterBackupRoutes(r chi.Router, backups *usecase.BackupManager, keepDays int) {
	r.Route("/backups", func(r chi.Router) {
		r.Get("/", handleListBackups(backups))
		r.Post("/", handleSnapshot(backups))
		r.Post("/sweep", handleSweep(backups, keepDays))
		r.Post("/{timestamp}/restore", handleRestore(backups))
	})
}

func handleUpload(pipeline *usecase.IngestPipeline, maxUpload int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if maxUpload > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, maxUpload+uploadOverhead)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				writeError(w, domain.ErrFileTooLarge)
				return
			}
			writeJSON(w, http.StatusBadRequest, errorBody("multipart field \"file\" is required"))
			return
		}
		defer file.Close()

		reader := io.Reader(file)
		if maxUpload > 0 {
			reader = io.LimitReader(file, maxUpload+1)
		}
		data, err := io.ReadAll(reader)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("failed to read upload"))
			return
		}

		id, err := pipeline.Submit(data, header.Filename)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{
			"job_id":    id,
			"file_name": header.Filename,
			"status":    string(domain.IngestReceived),
		})
	}
}

func handleStatus(pipeline *usecase.IngestPipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := pipeline.Status(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, status)
	}
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type searchHit struct {
	ID            int64   `json:"id"`
	Similarity    float64 `json:"similarity"`
	Content       string  `json:"content"`
	DocumentTitle string  `json:"document_title"`
	DocumentHash  string  `json:"document_hash"`
	ChunkIndex    int     `json:"chunk_index"`
}

func handleSearch(search *usecase.SearchUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req searchRequest
		if isJSON(r) {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
				return
			}
		} else {
			req.Query = r.FormValue("query")
			if v := r.FormValue("limit"); v != "" {
				n, err := strconv.Atoi(v)
				if err != nil {
					writeJSON(w, http.StatusBadRequest, errorBody("limit must be an integer"))
					return
				}
				req.Limit = n
			}
		}
		if req.Limit < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody("limit must not be negative"))
			return
		}

		results, err := search.Search(r.Context(), req.Query, req.Limit)
		if err != nil {
			writeError(w, err)
			return
		}

		hits := make([]searchHit, 0, len(results))
		for _, res := range results {
			hits = append(hits, searchHit{
				ID:            res.ID,
				Similarity:    res.Score,
				Content:       res.Metadata.Text,
				DocumentTitle: res.Metadata.DocumentTitle,
				DocumentHash:  res.Metadata.DocumentHash,
				ChunkIndex:    res.Metadata.ChunkIndex,
			})
		}
		writeJSON(w, http.StatusOK, hits)
	}
}

func handleList(st *store.VectorStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docs := st.Documents()
		if docs == nil {
			docs = []domain.DocumentSummary{}
		}
		writeJSON(w, http.StatusOK, docs)
	}
}

type askRequest struct {
	Question    string `json:"question"`
	ContextSize int    `json:"context_size"`
}

func handleAsk(search *usecase.SearchUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req askRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
			return
		}

		answer, err := search.Ask(r.Context(), req.Question, req.ContextSize)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, answer)
	}
}

func handleListBackups(backups *usecase.BackupManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := backups.ListBackups()
		if err != nil {
			writeError(w, err)
			return
		}
		if entries == nil {
			entries = []domain.BackupEntry{}
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func handleSnapshot(backups *usecase.BackupManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entry, err := backups.Snapshot()
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, entry)
	}
}

func handleSweep(backups *usecase.BackupManager, keepDays int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		days := keepDays
		if v := r.URL.Query().Get("keep_days"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, errorBody("keep_days must be an integer"))
				return
			}
			days = n
		}

		removed, err := backups.RetentionSweep(days)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"removed": removed, "keep_days": days})
	}
}

func handleRestore(backups *usecase.BackupManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ts := chi.URLParam(r, "timestamp")
		if err := backups.Restore(ts); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"restored": ts})
	}
}

func isJSON(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "application/json"
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

// writeError maps domain errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrUnsupportedFile):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrFileTooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrJobNotFound), errors.Is(err, domain.ErrBackupNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrQueueFull),
		errors.Is(err, domain.ErrModelUnavailable),
		errors.Is(err, domain.ErrGeneratorUnavailable):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, errorBody(err.Error()))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
