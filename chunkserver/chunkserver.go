package chunkserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/c2h5oh/datasize"
	"github.com/rs/zerolog/log"
	"github.com/sutd_dfs_project/chunks"
	"github.com/sutd_dfs_project/helper"
)

// in-memory part of a multipart chunk upload, the rest spills to disk
const maxUploadMemory = 32 << 20

// Registrar records which chunk server holds which chunk.
type Registrar interface {
	AddReplica(ctx context.Context, filename string, chunkID int, node string) error
	RemoveReplica(ctx context.Context, filename string, chunkID int, node string) error
}

// ChunkServer stores chunk blobs under a local folder and registers itself in
// chunk placement whenever it stores or deletes one.
type ChunkServer struct {
	// Location is the identifier this server registers under (host:port)
	Location string
	// ID distinguishes restarts of the same Location in logs
	ID        string
	root      string
	registrar Registrar
	mux       *http.ServeMux
}

func NewChunkServer(location, root string, registrar Registrar) (*ChunkServer, error) {
	if location == "" {
		return nil, fmt.Errorf("%w: chunk server needs an advertised address", helper.ErrValidation)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload folder: %w", err)
	}

	cs := &ChunkServer{
		Location:  location,
		ID:        helper.NewID(),
		root:      root,
		registrar: registrar,
		mux:       http.NewServeMux(),
	}
	cs.mux.HandleFunc("POST /store/{filename}/{chunk}", cs.storeChunk)
	cs.mux.HandleFunc("GET /retrieve/{filename}/{chunk}", cs.retrieveChunk)
	cs.mux.HandleFunc("DELETE /delete/{filename}/{chunk}", cs.deleteChunk)
	cs.mux.HandleFunc("GET /size/{filename}/{chunk}", cs.sizeChunk)
	cs.mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "OK")
	})
	return cs, nil
}

func (cs *ChunkServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cs.mux.ServeHTTP(w, r)
}

/* =============================== Chunk Storage functions =============================== */

func (cs *ChunkServer) chunkPath(r *http.Request) (string, int, string, error) {
	filename, err := helper.NormalizeFilename(r.PathValue("filename"))
	if err != nil {
		return "", 0, "", err
	}
	chunkID, err := strconv.Atoi(r.PathValue("chunk"))
	if err != nil || chunkID < 0 {
		return "", 0, "", fmt.Errorf("%w: invalid chunk id %q", helper.ErrValidation, r.PathValue("chunk"))
	}
	return filename, chunkID, filepath.Join(cs.root, chunks.Name(filename, chunkID)), nil
}

func (cs *ChunkServer) storeChunk(w http.ResponseWriter, r *http.Request) {
	filename, chunkID, path, err := cs.chunkPath(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		http.Error(w, "No file part", http.StatusBadRequest)
		return
	}
	part, _, err := r.FormFile(helper.CHUNK_FORM_FIELD)
	if err != nil {
		http.Error(w, "No file part", http.StatusBadRequest)
		return
	}
	defer part.Close()

	written, err := writeFileAtomic(path, part)
	if err != nil {
		log.Error().Err(err).Str("file", filename).Int("chunk", chunkID).Msg("[ChunkServer] Error writing chunk")
		http.Error(w, "Error storing chunk", http.StatusInternalServerError)
		return
	}

	if err := cs.registrar.AddReplica(r.Context(), filename, chunkID, cs.Location); err != nil {
		log.Error().Err(err).Str("file", filename).Int("chunk", chunkID).Msg("[ChunkServer] Error registering chunk")
		http.Error(w, "Error registering chunk", http.StatusInternalServerError)
		return
	}

	log.Info().Str("file", filename).Int("chunk", chunkID).Str("size", datasize.ByteSize(written).HR()).
		Msg("[ChunkServer] Chunk stored")
	io.WriteString(w, "File stored successfully")
}

// retrieveChunk also answers HEAD, which serves as the existence probe.
func (cs *ChunkServer) retrieveChunk(w http.ResponseWriter, r *http.Request) {
	_, _, path, err := cs.chunkPath(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f, err := os.Open(path)
	if err != nil {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func (cs *ChunkServer) deleteChunk(w http.ResponseWriter, r *http.Request) {
	filename, chunkID, path, err := cs.chunkPath(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	removeErr := os.Remove(path)
	if removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
		log.Error().Err(removeErr).Str("file", filename).Int("chunk", chunkID).Msg("[ChunkServer] Error deleting chunk")
		http.Error(w, "Error deleting chunk", http.StatusInternalServerError)
		return
	}

	// deregister even when the blob was already gone so placement stops pointing here
	if err := cs.registrar.RemoveReplica(r.Context(), filename, chunkID, cs.Location); err != nil {
		log.Error().Err(err).Str("file", filename).Int("chunk", chunkID).Msg("[ChunkServer] Error deregistering chunk")
		http.Error(w, "Error deregistering chunk", http.StatusInternalServerError)
		return
	}

	if removeErr != nil {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}
	log.Info().Str("file", filename).Int("chunk", chunkID).Msg("[ChunkServer] Chunk deleted")
	io.WriteString(w, "File deleted successfully")
}

func (cs *ChunkServer) sizeChunk(w http.ResponseWriter, r *http.Request) {
	_, _, path, err := cs.chunkPath(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	info, err := os.Stat(path)
	if err != nil {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}
	io.WriteString(w, strconv.FormatInt(info.Size(), 10))
}

// writeFileAtomic writes into a temp file next to path and renames it into
// place, so a probe never sees a half-written chunk.
func writeFileAtomic(path string, r io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	return n, os.Rename(tmp.Name(), path)
}
