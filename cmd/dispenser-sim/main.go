// cmd/dispenser-sim is a local stand-in for the dispenser-control endpoint.
// It issues one outstanding sequence at a time, validates it exactly once
// within its lifetime, and supports best-effort cancellation. Enough to run
// the whole dispense flow without the physical machine.
package main

import (
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/cafezao-da-computacao/cafezao/internal/logger"
)

type machine struct {
	mu       sync.Mutex
	sequence []int
	expires  time.Time
	ttl      time.Duration
	log      *zap.Logger
}

func (m *machine) generate(w http.ResponseWriter, _ *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seq := make([]int, 4)
	for i := range seq {
		seq[i] = rand.Intn(10)
	}
	m.sequence = seq
	m.expires = time.Now().Add(m.ttl)

	m.log.Info("sequence issued", zap.Ints("sequence", seq))
	writeJSON(w, http.StatusOK, map[string]any{"sequence": seq})
}

type validatePayload struct {
	Sequence string `json:"sequence"`
	Quantity string `json:"quantity"`
}

func (m *machine) validate(w http.ResponseWriter, r *http.Request) {
	var payload validatePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "malformed body"})
		return
	}
	if payload.Quantity != "1/4" && payload.Quantity != "2/4" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "unknown quantity"})
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.consumeLocked(payload.Sequence); err != nil {
		m.log.Warn("validation failed", zap.String("entered", payload.Sequence), zap.Error(err))
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
		return
	}

	m.log.Info("sequence validated", zap.String("quantity", payload.Quantity))
	writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
}

func (m *machine) consumeLocked(entered string) error {
	if m.sequence == nil {
		return errors.New("no sequence issued")
	}
	if time.Now().After(m.expires) {
		m.sequence = nil
		return errors.New("sequence expired")
	}

	var b strings.Builder
	for _, n := range m.sequence {
		b.WriteString(strconv.Itoa(n))
	}
	if entered != b.String() {
		return errors.New("invalid code")
	}

	// Consumed: a second validation of the same sequence must fail.
	m.sequence = nil
	return nil
}

func (m *machine) cancel(w http.ResponseWriter, _ *http.Request) {
	m.mu.Lock()
	m.sequence = nil
	m.mu.Unlock()

	m.log.Info("sequence cancelled")
	writeJSON(w, http.StatusOK, map[string]string{"message": "cancelled"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	log := logger.New(getEnv("ENV", "development"))
	defer func() { _ = log.Sync() }()

	ttl, err := time.ParseDuration(getEnv("CODE_TTL", "60s"))
	if err != nil {
		log.Fatal("invalid CODE_TTL", zap.Error(err))
	}

	m := &machine{ttl: ttl, log: log}

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Get("/generate-sequence", m.generate)
	r.Post("/validate-sequence", m.validate)
	r.Get("/cancel-sequence", m.cancel)

	addr := ":" + getEnv("PORT", "9000")
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("dispenser simulator listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("simulator stopped")
}
