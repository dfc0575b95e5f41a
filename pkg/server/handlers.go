package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/optimist-go/optimist/pkg/middleware"
	"github.com/optimist-go/optimist/pkg/protocol"
)

// keyResponse is the REST view of one cache key.
type keyResponse struct {
	Key     string          `json:"key"`
	Value   json.RawMessage `json:"value,omitempty"`
	Version uint64          `json:"version"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	keys := s.cache.Keys()
	sort.Strings(keys)
	writeJSON(w, http.StatusOK, map[string]any{"keys": keys, "count": len(keys)})
}

func (s *Server) handleGetKey(w http.ResponseWriter, r *http.Request) {
	key, err := requestKey(r)
	if err != nil {
		writeError(w, err)
		return
	}

	v, ok := s.cache.Get(key)
	if !ok {
		writeError(w, NotFound("key not found"))
		return
	}

	raw, merr := marshalValue(v)
	if merr != nil {
		s.logger.Warn("unencodable cache value", "key", key, "error", merr)
		writeError(w, &HTTPError{Code: http.StatusInternalServerError, Message: "value not representable as JSON", Err: merr})
		return
	}

	writeJSON(w, http.StatusOK, keyResponse{Key: key, Value: raw, Version: s.cache.Version(key)})
}

func (s *Server) handlePutKey(w http.ResponseWriter, r *http.Request) {
	key, err := requestKey(r)
	if err != nil {
		writeError(w, err)
		return
	}

	body, err := readBody(w, r, s.cfg.MaxBodyBytes)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(body) == 0 {
		writeError(w, BadRequestf("missing request body"))
		return
	}
	if !json.Valid(body) {
		writeError(w, BadRequestf("invalid JSON body"))
		return
	}

	if err := s.cache.SetChecked(key, json.RawMessage(body)); err != nil {
		writeError(w, Conflict(err))
		return
	}
	middleware.RecordKeyUpdate(middleware.SourceREST)

	writeJSON(w, http.StatusOK, keyResponse{Key: key, Version: s.cache.Version(key)})
}

func (s *Server) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	key, err := requestKey(r)
	if err != nil {
		writeError(w, err)
		return
	}

	s.cache.Delete(key)
	middleware.RecordKeyUpdate(middleware.SourceREST)
	w.WriteHeader(http.StatusNoContent)
}

// requestKey extracts and unescapes the {key} route parameter, applying
// the same length limit as the sync protocol.
func requestKey(r *http.Request) (string, error) {
	key, err := url.PathUnescape(chi.URLParam(r, "key"))
	if err != nil {
		return "", BadRequestf("malformed key: %v", err)
	}
	if key == "" {
		return "", BadRequestf("missing key")
	}
	if len(key) > protocol.MaxKeyLength {
		return "", BadRequestf("key exceeds %d bytes", protocol.MaxKeyLength)
	}
	return key, nil
}

// readBody reads the request body under the configured size cap.
func readBody(w http.ResponseWriter, r *http.Request, maxBytes int64) ([]byte, error) {
	limited := http.MaxBytesReader(w, r.Body, maxBytes)
	body, err := io.ReadAll(limited)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, RequestTooLarge(err)
		}
		return nil, BadRequestf("read body: %v", err)
	}
	return body, nil
}

// marshalValue returns the JSON form of a cached value. Wire and REST
// writes are stored raw; locally written Go values are marshalled.
func marshalValue(v any) (json.RawMessage, error) {
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(v)
}
