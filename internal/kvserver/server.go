// Package kvserver serves a repository over HTTP: raw object and
// branch access for the kv client backend, and slice exchange for
// push and pull. It is the single server both transports share.
package kvserver

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/ramusdb/ramus"
	"github.com/ramusdb/ramus/internal/kv"
)

const (
	maxObjectBytes = int64(32 << 20)
	maxSliceBytes  = int64(1 << 30)

	sliceContentType = "application/x-ramus-slice"
)

// Server handles:
//
//	GET PUT HEAD  /v1/objects/{key}
//	GET           /v1/branches
//	GET PUT DELETE /v1/branches/{name}
//	GET           /v1/slices?branch=...  (or head=..., plus min=...)
//	POST          /v1/slices
//
// Branch PUT is a compare-and-swap against the X-Ramus-Head-Old
// header; a stale expectation is a 409. Object PUT verifies the body
// hashes to the key before storing, so a server never stores garbage.
type Server struct {
	store    kv.Store
	branches kv.Branches
	repo     *ramus.Repo
	log      *slog.Logger
	mux      *http.ServeMux
}

// New builds a server over the given backends.
func New(store kv.Store, branches kv.Branches, log *slog.Logger, opts ...ramus.Option) (*Server, error) {
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel()}))
	}
	repo, err := ramus.New(store, branches, append([]ramus.Option{ramus.WithLogger(log)}, opts...)...)
	if err != nil {
		return nil, err
	}
	s := &Server{
		store:    store,
		branches: branches,
		repo:     repo,
		log:      log,
		mux:      http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /v1/objects/{key}", s.handleObjectGet)
	s.mux.HandleFunc("PUT /v1/objects/{key}", s.handleObjectPut)
	s.mux.HandleFunc("GET /v1/branches", s.handleBranchList)
	s.mux.HandleFunc("GET /v1/branches/{name}", s.handleBranchRead)
	s.mux.HandleFunc("PUT /v1/branches/{name}", s.handleBranchUpdate)
	s.mux.HandleFunc("DELETE /v1/branches/{name}", s.handleBranchRemove)
	s.mux.HandleFunc("GET /v1/slices", s.handleSliceExport)
	s.mux.HandleFunc("POST /v1/slices", s.handleSliceImport)
	return s, nil
}

func logLevel() slog.Level {
	if os.Getenv("DEBUG") != "" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)
	s.log.Info("request",
		slog.String("request_id", uuid.NewString()),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", rec.status),
		slog.Duration("elapsed", time.Since(start)))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) handleObjectGet(w http.ResponseWriter, r *http.Request) {
	key, ok := s.pathKey(w, r)
	if !ok {
		return
	}
	if r.Method == http.MethodHead {
		stored, err := s.store.Mem(r.Context(), key)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, "internal", err.Error())
			return
		}
		if !stored {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
		return
	}
	data, stored, err := s.store.Get(r.Context(), key)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	if !stored {
		s.writeError(w, http.StatusNotFound, "not_found", "object not stored")
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(data)
}

func (s *Server) handleObjectPut(w http.ResponseWriter, r *http.Request) {
	raw, ok := s.pathKey(w, r)
	if !ok {
		return
	}
	key, err := ramus.KeyFromBytes(raw)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_key", err.Error())
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxObjectBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "bad_body", err.Error())
		return
	}
	// PutEncoded checks that the body hashes to the key and that the
	// envelope kind matches the tag.
	if err := s.repo.Objects().PutEncoded(r.Context(), key, data); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleBranchList(w http.ResponseWriter, r *http.Request) {
	names, err := s.branches.List(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	if names == nil {
		names = []string{}
	}
	s.writeJSON(w, http.StatusOK, names)
}

func (s *Server) handleBranchRead(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	head, stored, err := s.branches.Read(r.Context(), name)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	if !stored {
		s.writeError(w, http.StatusNotFound, "not_found", "branch not stored")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"head": hex.EncodeToString(head)})
}

func (s *Server) handleBranchUpdate(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var doc struct {
		Head string `json:"head"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&doc); err != nil {
		s.writeError(w, http.StatusBadRequest, "bad_body", err.Error())
		return
	}
	head, err := hex.DecodeString(doc.Head)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_key", "head is not hex")
		return
	}
	key, err := ramus.KeyFromBytes(head)
	if err != nil || key.Kind() != ramus.KindCommit {
		s.writeError(w, http.StatusBadRequest, "invalid_key", "head is not a commit key")
		return
	}
	stored, err := s.store.Mem(r.Context(), head)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	if !stored {
		s.writeError(w, http.StatusUnprocessableEntity, "unknown_commit", "head commit not stored")
		return
	}

	var old []byte
	if v := r.Header.Get(kv.HeadHeader); v != "" {
		old, err = hex.DecodeString(v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid_key", "stale head is not hex")
			return
		}
	}
	if err := s.branches.Update(r.Context(), name, old, head); err != nil {
		if errors.Is(err, kv.ErrHeadMoved) {
			s.writeError(w, http.StatusConflict, "head_moved", "branch head moved")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBranchRemove(w http.ResponseWriter, r *http.Request) {
	if err := s.branches.Remove(r.Context(), r.PathValue("name")); err != nil {
		s.writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSliceExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var heads []ramus.Key
	if branch := q.Get("branch"); branch != "" {
		raw, stored, err := s.branches.Read(r.Context(), branch)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, "internal", err.Error())
			return
		}
		if !stored {
			s.writeError(w, http.StatusNotFound, "not_found", "branch not stored")
			return
		}
		key, err := ramus.KeyFromBytes(raw)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, "internal", err.Error())
			return
		}
		heads = append(heads, key)
	}
	for _, h := range q["head"] {
		key, err := ramus.ParseKey(h)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid_key", err.Error())
			return
		}
		heads = append(heads, key)
	}
	if len(heads) == 0 {
		s.writeError(w, http.StatusBadRequest, "bad_request", "branch or head required")
		return
	}
	var min []ramus.Key
	for _, m := range q["min"] {
		key, err := ramus.ParseKey(m)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid_key", err.Error())
			return
		}
		min = append(min, key)
	}

	slice, err := s.repo.Export(r.Context(), heads, min)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", sliceContentType)
	if err := slice.Encode(w); err != nil {
		s.log.Error("encode slice", slog.Any("error", err))
	}
}

func (s *Server) handleSliceImport(w http.ResponseWriter, r *http.Request) {
	slice, err := ramus.DecodeSlice(http.MaxBytesReader(w, r.Body, maxSliceBytes))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if err := s.repo.Import(r.Context(), slice); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.log.Info("imported slice", slog.Int("objects", slice.Len()))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) pathKey(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	key, err := hex.DecodeString(r.PathValue("key"))
	if err != nil || len(key) == 0 {
		s.writeError(w, http.StatusBadRequest, "invalid_key", "key is not hex")
		return nil, false
	}
	return key, true
}

// writeDomainError maps sentinel errors onto statuses the clients
// understand.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ramus.ErrInvalidKey), errors.Is(err, ramus.ErrInvalidSlice), errors.Is(err, ramus.ErrInvalidBranch):
		s.writeError(w, http.StatusBadRequest, "invalid", err.Error())
	case errors.Is(err, ramus.ErrTypeMismatch):
		s.writeError(w, http.StatusBadRequest, "type_mismatch", err.Error())
	case errors.Is(err, ramus.ErrUnknownKey):
		s.writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, ramus.ErrDanglingParent):
		s.writeError(w, http.StatusUnprocessableEntity, "dangling_parent", err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, map[string]string{"code": code, "message": message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("encode response", slog.Any("error", err))
	}
}
