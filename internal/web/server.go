// Package web exposes the output bank and device status over HTTP.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/sweeney/letterbox/internal/outputs"
	"github.com/sweeney/letterbox/internal/status"
)

const (
	// maxBody bounds POST bodies; a {value} object is a few bytes.
	maxBody = 1 << 10

	shutdownTimeout = 5 * time.Second
)

// RegisterJSON is the body of GET /.
type RegisterJSON struct {
	Outputs uint32 `json:"outputs"`
}

// ValueJSON is the body accepted by POST /outputs/{i}.
type ValueJSON struct {
	Value int `json:"value"`
}

// Server serves the control surface.
type Server struct {
	httpServer *http.Server
	bank       *outputs.Bank
	tracker    *status.Tracker
}

// New creates a Server over bank and tracker.
func New(addr string, bank *outputs.Bank, tracker *status.Tracker) *Server {
	s := &Server{bank: bank, tracker: tracker}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleRegister).Methods(http.MethodGet)
	r.HandleFunc("/outputs/{i}", s.handleGet).Methods(http.MethodGet)
	r.HandleFunc("/outputs/{i}", s.handleSet).Methods(http.MethodPost)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: r,
	}
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Run serves until ctx is done, then shuts down. A listener failure is
// returned as is; a normal shutdown returns ctx's error.
func (s *Server) Run(ctx context.Context, ln net.Listener) error {
	errc := make(chan error, 1)
	go func() { errc <- s.Serve(ln) }()

	select {
	case err := <-errc:
		return fmt.Errorf("http: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			log.Printf("http: shutdown: %v", err)
		}
		<-errc
		return ctx.Err()
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, RegisterJSON{Outputs: s.bank.Value()})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	res := s.bank.Get(outputName(r))
	writeResult(w, res)
}

func (s *Server) handleSet(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	name := outputName(r)
	if _, ok := s.bank.Index(name); !ok {
		writeResult(w, s.bank.Get(name))
		return
	}

	var body ValueJSON
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	if err := dec.Decode(&body); err != nil {
		log.Printf("http: %s %s: %v", r.Method, r.URL.Path, err)
		writeJSON(w, http.StatusBadRequest, outputs.Result{Err: fmt.Errorf("bad request: %w", err)})
		return
	}

	res := s.bank.Set(name, body.Value)
	if res.OK() {
		log.Printf("http: %s = %d", res.Name, res.Value)
	}
	writeResult(w, res)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(s.tracker.Snapshot()))
}

// outputName maps the {i} route variable to a bank name. Non-canonical
// ordinals ("01", "+1") produce names the bank rejects.
func outputName(r *http.Request) string {
	return outputs.NamePrefix + mux.Vars(r)["i"]
}

func writeResult(w http.ResponseWriter, res outputs.Result) {
	code := http.StatusOK
	switch {
	case errors.Is(res.Err, outputs.ErrUnknownOutput):
		code = http.StatusNotFound
	case res.Err != nil:
		code = http.StatusBadRequest
	}
	writeJSON(w, code, res)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
