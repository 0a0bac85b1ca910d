package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/leapstack-labs/wellplan/internal/protocols"
	"github.com/leapstack-labs/wellplan/internal/state"
	"github.com/leapstack-labs/wellplan/pkg/core"
	"github.com/starfederation/datastar-go/datastar"
)

const defaultRunLimit = 20

type protocolView struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Defaults    map[string]any `json:"defaults,omitempty"`
}

type planRequest struct {
	Params map[string]any `json:"params"`
	// Slots overrides the configured deck placement order.
	Slots []core.Slot `json:"slots"`
}

type errorResponse struct {
	Error        string `json:"error"`
	ParamsDigest string `json:"params_digest,omitempty"`
}

type runView struct {
	ID           string    `json:"id"`
	Protocol     string    `json:"protocol"`
	Status       string    `json:"status"`
	Instructions int       `json:"instructions"`
	ParamsDigest string    `json:"params_digest"`
	PlanDigest   string    `json:"plan_digest,omitempty"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func newRunView(r *core.Run) runView {
	return runView{
		ID:           r.ID,
		Protocol:     r.Protocol,
		Status:       string(r.Status),
		Instructions: r.Instructions,
		ParamsDigest: r.ParamsDigest,
		PlanDigest:   r.PlanDigest,
		Error:        r.Error,
		CreatedAt:    r.CreatedAt,
	}
}

func (s *Server) listProtocols(w http.ResponseWriter, _ *http.Request) {
	views := make([]protocolView, 0)
	for _, name := range protocols.List() {
		p, err := protocols.Get(name)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		views = append(views, protocolView{Name: p.Name(), Description: p.Description()})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) showProtocol(w http.ResponseWriter, r *http.Request) {
	p, err := protocols.Get(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, protocolView{
		Name:        p.Name(),
		Description: p.Description(),
		Defaults:    protocols.Merge(p.Defaults(), s.params(p.Name())),
	})
}

// generate runs one protocol. Request parameters are laid over the
// configured ones; every outcome is recorded when a ledger is attached.
func (s *Server) generate(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !protocols.IsRegistered(name) {
		writeError(w, http.StatusNotFound, &protocols.UnknownProtocolError{Name: name, Available: protocols.List()})
		return
	}

	var req planRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, errors.New("invalid request body: "+err.Error()))
			return
		}
	}

	params := protocols.Merge(s.params(name), req.Params)
	opts := s.options
	if len(req.Slots) > 0 {
		opts.Slots = req.Slots
	}
	opts.Logger = s.logger.With("request_id", middleware.GetReqID(r.Context()))

	res, genErr := protocols.Generate(r.Context(), name, params, opts)
	run := protocols.RunRecord(name, params, opts, res, genErr)
	if err := s.record(run); err != nil {
		s.logger.Error("failed to record run", "protocol", name, "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	if genErr != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: genErr.Error(), ParamsDigest: run.ParamsDigest})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, errNoLedger)
		return
	}

	var (
		runs []*core.Run
		err  error
	)
	if digest := r.URL.Query().Get("params"); digest != "" {
		runs, err = s.store.RunsWithParams(digest)
	} else {
		runs, err = s.store.ListRuns(queryLimit(r))
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	views := make([]runView, 0, len(runs))
	for _, run := range runs {
		views = append(views, newRunView(run))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, errNoLedger)
		return
	}
	run, err := s.store.GetRun(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	same, err := s.store.RunsWithParams(run.ParamsDigest)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		runView
		Reproducible bool `json:"reproducible"`
	}{newRunView(run), state.Reproducible(same)})
}

// runEvents streams the recent runs as datastar signals: once on connect and
// again whenever a run is recorded.
func (s *Server) runEvents(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, errNoLedger)
		return
	}

	updates, unsubscribe := s.feed.subscribe()
	defer unsubscribe()
	s.logger.Debug("run event listener connected", "listeners", s.feed.len())

	sse := datastar.NewSSE(w, r)
	limit := queryLimit(r)
	send := func(latest *core.Run) {
		signals := map[string]any{}
		if latest != nil {
			signals["latest"] = newRunView(latest)
		}
		runs, err := s.store.ListRuns(limit)
		if err != nil {
			_ = sse.ConsoleError(err)
			return
		}
		views := make([]runView, 0, len(runs))
		for _, run := range runs {
			views = append(views, newRunView(run))
		}
		signals["runs"] = views
		if err := sse.MarshalAndPatchSignals(signals); err != nil {
			s.logger.Debug("run event not delivered", "error", err)
		}
	}

	send(nil)
	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case run, ok := <-updates:
			if !ok {
				return
			}
			send(run)
		}
	}
}

var errNoLedger = errors.New("no run ledger configured")

func queryLimit(r *http.Request) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return defaultRunLimit
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
