package main

import (
	"crypto/rand"
	"encoding/json"
	"log/slog"
	mathrand "math/rand"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/kelseyhightower/envconfig"
	"github.com/oklog/ulid/v2"

	"campaigner/internal/logging"
)

// Local stand-in for the outbound chat gateway. Lets the dispatcher be
// exercised end-to-end without a real channel account.

type config struct {
	Port        string  `envconfig:"PORT" default:"8082"`
	LogFormat   string  `envconfig:"LOG_FORMAT" default:"text"`
	SuccessRate float64 `envconfig:"MOCK_SUCCESS_RATE" default:"0.95"`
	DelayMs     int     `envconfig:"MOCK_DELAY_MS" default:"50"`
}

type sendRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
	From string `json:"from"`
}

type sendResponse struct {
	MessageID string `json:"message_id,omitempty"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

func main() {
	var cfg config
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	logging.Init("mock-gateway", cfg.LogFormat, "info")

	var accepted, rejected atomic.Int64

	r := mux.NewRouter()
	r.HandleFunc("/v1/messages", func(w http.ResponseWriter, req *http.Request) {
		var in sendRequest
		if err := json.NewDecoder(req.Body).Decode(&in); err != nil || in.To == "" || in.Body == "" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(sendResponse{Status: "rejected", Error: "invalid request"})
			return
		}

		if cfg.DelayMs > 0 {
			time.Sleep(time.Duration(cfg.DelayMs) * time.Millisecond)
		}

		if mathrand.Float64() >= cfg.SuccessRate {
			rejected.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(sendResponse{Status: "failed", Error: "simulated gateway failure"})
			return
		}

		accepted.Add(1)
		id := "wamid_" + ulid.MustNew(ulid.Timestamp(time.Now().UTC()), rand.Reader).String()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(sendResponse{MessageID: id, Status: "accepted"})
	}).Methods(http.MethodPost)

	r.HandleFunc("/stats", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]int64{
			"accepted": accepted.Load(),
			"rejected": rejected.Load(),
		})
	}).Methods(http.MethodGet)

	slog.Info("mock gateway listening", "port", cfg.Port, "success_rate", cfg.SuccessRate)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		slog.Error("mock gateway failed", "err", err)
		os.Exit(1)
	}
}
