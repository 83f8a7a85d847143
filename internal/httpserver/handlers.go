package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"campaigner/internal/domain"
	"campaigner/internal/scheduler"
)

type API struct {
	Gateway *scheduler.Gateway
}

func (a *API) Register(mux *mux.Router) {
	mux.HandleFunc("/v1/campaigns/run-due", a.handleRunDue).Methods(http.MethodPost)
	mux.HandleFunc("/v1/campaigns/{id}/dispatch", a.handleDispatch).Methods(http.MethodPost)
	mux.HandleFunc("/v1/campaigns", a.handleList).Methods(http.MethodGet)
	mux.HandleFunc("/v1/campaigns/{id}", a.handleGet).Methods(http.MethodGet)
}

type runDueRequest struct {
	Source string `json:"source"`
}

func (a *API) handleRunDue(w http.ResponseWriter, r *http.Request) {
	var req runDueRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Source == "" {
		req.Source = "manual"
	}

	summary, err := a.Gateway.RunDue(r.Context(), req.Source)
	if err != nil {
		slog.Error("run due campaigns failed", "source", req.Source, "err", err)
		http.Error(w, ErrDependency, http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleDispatch(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == "" {
		http.Error(w, ErrMissingID, http.StatusBadRequest)
		return
	}

	summary, err := a.Gateway.RunSingle(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrCampaignNotFound):
			http.Error(w, ErrNotFound, http.StatusNotFound)
		case errors.Is(err, domain.ErrAlreadyDispatched):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			slog.Error("campaign dispatch failed", "campaign_id", id, "err", err)
			http.Error(w, err.Error(), http.StatusBadGateway)
		}
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleList(w http.ResponseWriter, r *http.Request) {
	campaigns, err := a.Gateway.ListCampaigns(r.Context())
	if err != nil {
		slog.Error("list campaigns failed", "err", err)
		http.Error(w, ErrDependency, http.StatusBadGateway)
		return
	}
	if campaigns == nil {
		campaigns = []domain.Campaign{}
	}
	writeJSON(w, http.StatusOK, campaigns)
}

func (a *API) handleGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == "" {
		http.Error(w, ErrMissingID, http.StatusBadRequest)
		return
	}
	c, found, err := a.Gateway.GetCampaign(r.Context(), id)
	if err != nil {
		slog.Error("get campaign failed", "campaign_id", id, "err", err)
		http.Error(w, ErrDependency, http.StatusBadGateway)
		return
	}
	if !found {
		http.Error(w, ErrNotFound, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
