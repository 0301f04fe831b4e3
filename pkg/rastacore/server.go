// Package rastacore provides the base HTTP server, CLI flags, middleware
// chain, and response helpers for the rasta-core service.
package rastacore

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Flags holds the command-line configuration for the service process.
type Flags struct {
	Port       int
	ConfigFile string
	SeedFile   string
	Verbose    bool
	Name       string // service name for logging
}

// ParseFlags parses command-line flags and returns them.
func ParseFlags(name string) *Flags {
	f := &Flags{Name: name}
	flag.IntVar(&f.Port, "port", 0, "HTTP listen port (overrides config file)")
	flag.StringVar(&f.ConfigFile, "config", "", "Path to YAML config file")
	flag.StringVar(&f.SeedFile, "seed-file", "", "Path to JSON fixture for initial state")
	flag.BoolVar(&f.Verbose, "verbose", false, "Enable request/response logging")
	flag.Parse()

	if f.Port == 0 {
		if p := os.Getenv("PORT"); p != "" {
			fmt.Sscanf(p, "%d", &f.Port)
		}
	}

	return f
}

// Server wraps a chi router with the common middleware chain and provides
// lifecycle management.
type Server struct {
	Flags  *Flags
	Router *chi.Mux
	Logger *slog.Logger
	ReqLog *RequestLog
}

// NewServer creates a Server with the given flags.
func NewServer(f *Flags) *Server {
	level := slog.LevelInfo
	if f.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))

	s := &Server{
		Flags:  f,
		Logger: logger,
		ReqLog: NewRequestLog(1000),
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.cors)
	r.Use(s.requestLog)
	s.Router = r

	return s
}

// Serve starts the HTTP server and blocks until shutdown signal.
func (s *Server) Serve() error {
	addr := fmt.Sprintf(":%d", s.Flags.Port)

	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		s.Logger.Info("starting server", "name", s.Flags.Name, "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.Logger.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	<-done
	s.Logger.Info("shutting down", "name", s.Flags.Name)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// ServeHTTP implements http.Handler so Server can be used directly in tests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

// Envelope is the uniform response body for every API endpoint.
type Envelope struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// JSON writes a raw JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// OK writes a success envelope.
func OK(w http.ResponseWriter, status int, message string, data any) {
	JSON(w, status, Envelope{Status: true, Message: message, Data: data})
}

// Fail writes a failure envelope.
func Fail(w http.ResponseWriter, status int, message string) {
	JSON(w, status, Envelope{Status: false, Message: message})
}
