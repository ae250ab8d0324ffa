package master

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/sutd_dfs_project/helper"
	"github.com/sutd_dfs_project/models"
	"github.com/sutd_dfs_project/store"
)

// maximum accepted init body
const maxInitBody = 1 << 16

// Server exposes the FileController over HTTP under /v1.
type Server struct {
	files *FileController
	store store.Store
	mux   *http.ServeMux
}

func NewServer(files *FileController, st store.Store, gatherer prometheus.Gatherer) *Server {
	s := &Server{files: files, store: st, mux: http.NewServeMux()}
	s.mux.HandleFunc("POST /v1/files/init", s.initFile)
	s.mux.HandleFunc("GET /v1/files/{filename}/size", s.fileSize)
	s.mux.HandleFunc("GET /v1/files/{filename}/chunks", s.fileChunks)
	s.mux.HandleFunc("DELETE /v1/files/{filename}", s.deleteFile)
	s.mux.HandleFunc("GET /v1/servers", s.servers)
	s.mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, models.MessageResponse{Message: "healthy"})
	})
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) initFile(w http.ResponseWriter, r *http.Request) {
	var req models.InitRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxInitBody))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Unable to parse JSON: " + err.Error(), Code: models.CodeValidation})
		return
	}

	allocations, err := s.files.Init(r.Context(), req.Filename, req.Size)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, allocations)
}

func (s *Server) fileSize(w http.ResponseWriter, r *http.Request) {
	size, err := s.files.Size(r.Context(), r.PathValue("filename"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.SizeResponse{Size: size})
}

func (s *Server) fileChunks(w http.ResponseWriter, r *http.Request) {
	locations, err := s.files.Chunks(r.Context(), r.PathValue("filename"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, locations)
}

func (s *Server) deleteFile(w http.ResponseWriter, r *http.Request) {
	if err := s.files.Delete(r.Context(), r.PathValue("filename")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.MessageResponse{Message: "File deleted successfully"})
}

func (s *Server) servers(w http.ResponseWriter, r *http.Request) {
	registry, err := s.store.Servers(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	live, err := s.store.LiveNodes(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	alive := make(map[string]bool, len(live))
	for _, node := range live {
		alive[node] = true
	}
	resp := models.ServersResponse{
		Servers:  make([]models.ChunkServerState, 0, len(registry)),
		Rotation: live,
	}
	for _, node := range registry {
		status := models.StatusDead
		if alive[node] {
			status = models.StatusAlive
		}
		resp.Servers = append(resp.Servers, models.ChunkServerState{Node: node, Status: status})
	}
	writeJSON(w, http.StatusOK, resp)
}

// statusFor maps error classes to HTTP status codes. Conflicts are 400, not 409.
func statusFor(err error) int {
	switch {
	case errors.Is(err, helper.ErrValidation), errors.Is(err, helper.ErrConflict):
		return http.StatusBadRequest
	case errors.Is(err, helper.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// codeFor names the error class so clients need not infer it from the status.
func codeFor(err error) string {
	switch {
	case errors.Is(err, helper.ErrConflict):
		return models.CodeConflict
	case errors.Is(err, helper.ErrValidation):
		return models.CodeValidation
	case errors.Is(err, helper.ErrNotFound):
		return models.CodeNotFound
	case errors.Is(err, helper.ErrResourceExhausted):
		return models.CodeResourceExhausted
	default:
		return ""
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	resp := models.ErrorResponse{Error: err.Error(), Code: codeFor(err)}

	var remain *helper.ChunksRemainError
	if errors.As(err, &remain) {
		resp.Chunks = remain.Chunks
	}
	if status == http.StatusInternalServerError && !errors.Is(err, helper.ErrResourceExhausted) {
		log.Error().Err(err).Msg("[Master] Request failed")
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("[Master] Error writing response")
	}
}
