package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"eduscale/internal/config"
	"eduscale/internal/logging"
	"eduscale/internal/status"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	bind := strings.TrimSpace(cfg.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logger.With(logging.String(logging.FieldComponent, "api")),
		daemon: d,
	}

	mux := http.NewServeMux()
	token := cfg.APIToken
	mux.HandleFunc("/api/status", authMiddleware(token, srv.handleStatus))
	mux.HandleFunc("/api/files", authMiddleware(token, srv.handleFiles))
	mux.HandleFunc("/api/files/", authMiddleware(token, srv.handleFile))
	mux.HandleFunc("/api/replay", authMiddleware(token, srv.handleReplay))

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.daemon.Status())
}

func (s *apiServer) handleFiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	records := s.daemon.Records().List()
	if stageFilter := strings.TrimSpace(r.URL.Query().Get("stage")); stageFilter != "" {
		stage, ok := status.ParseStage(stageFilter)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown stage %q", stageFilter))
			return
		}
		filtered := records[:0]
		for _, record := range records {
			if record.CurrentStage == stage {
				filtered = append(filtered, record)
			}
		}
		records = filtered
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"files": records})
}

func (s *apiServer) handleFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	fileID := strings.TrimPrefix(r.URL.Path, "/api/files/")
	if fileID == "" || strings.Contains(fileID, "/") {
		s.writeError(w, http.StatusBadRequest, "file id required")
		return
	}
	record, ok := s.daemon.Records().Get(fileID)
	if !ok {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("no record for %q", fileID))
		return
	}
	s.writeJSON(w, http.StatusOK, record)
}

func (s *apiServer) handleReplay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		Bucket     string `json:"bucket"`
		ObjectPath string `json:"object_path"`
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
		return
	}
	if strings.TrimSpace(req.ObjectPath) == "" {
		s.writeError(w, http.StatusBadRequest, "object_path required")
		return
	}

	n, err := s.daemon.Replay(r.Context(), req.Bucket, req.ObjectPath)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, n)
}

func (s *apiServer) writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("api response encode failed", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, code int, message string) {
	s.writeJSON(w, code, map[string]string{"error": message})
}
