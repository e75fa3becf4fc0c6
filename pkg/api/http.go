package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"meshnode/pkg/ingest"
	"meshnode/pkg/logger"
	"meshnode/pkg/models"
	"meshnode/pkg/store"
	"meshnode/pkg/utils"
)

// maxEnvelopeBytes bounds one submitted envelope.
const maxEnvelopeBytes = 1 << 20 // 1 MiB

// Server exposes the node's HTTP surface: synchronous message submission
// plus read access to the derived state.
type Server struct {
	proc *ingest.Processor
	st   *store.Store
}

// NewHandler builds the versioned router.
func NewHandler(proc *ingest.Processor, st *store.Store, rl RateLimit) http.Handler {
	s := &Server{proc: proc, st: st}
	r := mux.NewRouter()
	v1 := r.PathPrefix("/v1").Subrouter()

	v1.HandleFunc("/messages", s.submitMessage).Methods(http.MethodPost)
	v1.HandleFunc("/messages/{hash}", s.getMessage).Methods(http.MethodGet)
	v1.HandleFunc("/channels/{channel}/messages", s.listChannel).Methods(http.MethodGet)
	v1.HandleFunc("/aggregates/{address}", s.getAggregates).Methods(http.MethodGet)
	v1.HandleFunc("/aggregates/{address}/{key}/history", s.getAggregateHistory).Methods(http.MethodGet)
	v1.HandleFunc("/posts/{hash}", s.getPost).Methods(http.MethodGet)
	v1.HandleFunc("/files/{hash}", s.getFile).Methods(http.MethodGet)

	return rateLimitMiddleware(rl, r)
}

// submitMessage runs the candidate through the pipeline synchronously and
// returns its classification plus the computed item_hash. Gossip and
// chain-replay failures are only logged; API callers get them here.
func (s *Server) submitMessage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEnvelopeBytes+1))
	if err != nil {
		utils.JSONError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if len(body) > maxEnvelopeBytes {
		utils.JSONError(w, http.StatusRequestEntityTooLarge, "envelope too large")
		return
	}
	out, err := s.proc.Process(r.Context(), body, models.SourceAPI, 0)
	if err != nil {
		logger.Error("submit_failed", "error", err)
		utils.JSONError(w, http.StatusInternalServerError, "internal error")
		return
	}
	switch out.Classification {
	case models.Accepted:
		_ = utils.JSONWrite(w, http.StatusOK, out)
	case models.Deferred:
		_ = utils.JSONWrite(w, http.StatusAccepted, out)
	default:
		_ = utils.JSONWrite(w, http.StatusUnprocessableEntity, out)
	}
}

func (s *Server) getMessage(w http.ResponseWriter, r *http.Request) {
	hash := mux.Vars(r)["hash"]
	m, err := s.st.GetMessage(hash)
	if err != nil {
		if store.IsNotFound(err) {
			utils.JSONError(w, http.StatusNotFound, "message not found")
			return
		}
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	confs, err := s.st.ListConfirmations(hash)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Message       *models.Message              `json:"message"`
		Confirmations []*models.ConfirmationRecord `json:"confirmations,omitempty"`
	}{Message: m, Confirmations: confs})
}

// listChannel returns a channel's accepted messages in deterministic
// replay order (ascending time, tie-break item_hash).
func (s *Server) listChannel(w http.ResponseWriter, r *http.Request) {
	channel := mux.Vars(r)["channel"]
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := parseLimit(v); err == nil {
			limit = n
		}
	}
	var out []*models.Message
	err := s.st.ReplayChannel(channel, func(hash string) bool {
		m, gerr := s.st.GetMessage(hash)
		if gerr == nil {
			out = append(out, m)
		}
		return len(out) < limit
	})
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Channel  string            `json:"channel"`
		Messages []*models.Message `json:"messages"`
	}{Channel: channel, Messages: out})
}

// getAggregates returns an address's aggregate documents, optionally
// filtered with ?keys=a,b.
func (s *Server) getAggregates(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	if keysParam := r.URL.Query().Get("keys"); keysParam != "" {
		docs := make(map[string]interface{})
		for _, k := range strings.Split(keysParam, ",") {
			doc, err := s.st.GetAggregate(address, k)
			if err != nil {
				if store.IsNotFound(err) {
					continue
				}
				utils.JSONError(w, http.StatusInternalServerError, err.Error())
				return
			}
			docs[k] = doc.Content
		}
		_ = utils.JSONWrite(w, http.StatusOK, struct {
			Address string                 `json:"address"`
			Data    map[string]interface{} `json:"data"`
		}{Address: address, Data: docs})
		return
	}
	docs, err := s.st.ListAggregates(address)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	data := make(map[string]interface{}, len(docs))
	for _, d := range docs {
		data[d.Key] = d.Content
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Address string                 `json:"address"`
		Data    map[string]interface{} `json:"data"`
	}{Address: address, Data: data})
}

// getAggregateHistory returns every message hash that contributed to one
// (address, key) document, in the merge order, with the hash currently
// holding the document. The history lets a caller audit which update won
// the convergence rule.
func (s *Server) getAggregateHistory(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	address, key := vars["address"], vars["key"]
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := parseLimit(v); err == nil {
			limit = n
		}
	}
	var hashes []string
	err := s.st.ReplayAggregateKey(address, key, func(hash string) bool {
		hashes = append(hashes, hash)
		return len(hashes) < limit
	})
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(hashes) == 0 {
		utils.JSONError(w, http.StatusNotFound, "aggregate not found")
		return
	}
	current := ""
	if doc, gerr := s.st.GetAggregate(address, key); gerr == nil {
		current = doc.LastHash
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Address string   `json:"address"`
		Key     string   `json:"key"`
		Current string   `json:"current"`
		History []string `json:"history"`
	}{Address: address, Key: key, Current: current, History: hashes})
}

func (s *Server) getPost(w http.ResponseWriter, r *http.Request) {
	hash := mux.Vars(r)["hash"]
	rec, err := s.st.GetPost(hash)
	if err != nil {
		if store.IsNotFound(err) {
			utils.JSONError(w, http.StatusNotFound, "post not found")
			return
		}
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, rec)
}

func (s *Server) getFile(w http.ResponseWriter, r *http.Request) {
	hash := mux.Vars(r)["hash"]
	rec, err := s.st.GetFile(hash)
	if err != nil {
		if store.IsNotFound(err) {
			utils.JSONError(w, http.StatusNotFound, "file not found")
			return
		}
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, rec)
}

func parseLimit(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid limit: %q", s)
	}
	if n > 10000 {
		n = 10000
	}
	return n, nil
}
