package callback

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Request size and shutdown limits.
const (
	maxCallbackBody = 1 << 20 // 1 MiB
	readTimeout     = 10 * time.Second
	shutdownGrace   = 5 * time.Second
)

// Server exposes the callback endpoint over HTTP. The assessment service
// must present the configured shared secret as a bearer token; nothing is
// applied before the token checks out.
type Server struct {
	receiver *Receiver
	secret   string
	addr     string
	logger   *slog.Logger
}

// NewServer creates a Server. secret must be non-empty.
func NewServer(receiver *Receiver, addr, secret string, logger *slog.Logger) *Server {
	return &Server{receiver: receiver, secret: secret, addr: addr, logger: logger}
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/assessments/callback", s.handleCallback)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:        s.addr,
		Handler:     mux,
		ReadTimeout: readTimeout,
	}

	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("callback server listening", slog.String("addr", s.addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}

		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return err
	}
}

// handleCallback accepts a single status update object or an array of them.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !s.authorized(r) {
		s.logger.Warn("callback rejected: bad token", slog.String("remote", r.RemoteAddr))
		http.Error(w, "unauthorized", http.StatusUnauthorized)

		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
	if err != nil {
		http.Error(w, "reading body", http.StatusBadRequest)
		return
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		http.Error(w, "empty body", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	// Batched deliveries are arrays; single notices are objects.
	if trimmed[0] == '[' {
		var updates []StatusUpdate
		if err := json.Unmarshal(trimmed, &updates); err != nil {
			http.Error(w, "malformed batch", http.StatusBadRequest)
			return
		}

		writeJSON(w, s.logger, s.receiver.HandleBatch(r.Context(), updates))

		return
	}

	var update StatusUpdate
	if err := json.Unmarshal(trimmed, &update); err != nil {
		http.Error(w, "malformed update", http.StatusBadRequest)
		return
	}

	writeJSON(w, s.logger, s.receiver.Handle(r.Context(), update))
}

// authorized checks the bearer token in constant time.
func (s *Server) authorized(r *http.Request) bool {
	auth := r.Header.Get("Authorization")

	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(token), []byte(s.secret)) == 1
}

// writeJSON encodes v to the response, logging encode failures.
func writeJSON(w http.ResponseWriter, logger *slog.Logger, v any) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("encoding callback response", slog.String("error", err.Error()))
	}
}
