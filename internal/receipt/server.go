package receipt

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// Server handles HTTP requests for receipts
type Server struct {
	service  *Service
	verifier TokenVerifier
	metrics  *Metrics
	mux      *http.ServeMux
	now      func() time.Time
}

// NewServer creates a new Server with default mux.
// A nil verifier disables auth and every request runs as LocalUserID.
func NewServer(service *Service, verifier TokenVerifier, metrics *Metrics) *Server {
	return NewServerWithMux(service, verifier, metrics, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(service *Service, verifier TokenVerifier, metrics *Metrics, mux *http.ServeMux) *Server {
	s := &Server{
		service:  service,
		verifier: verifier,
		metrics:  metrics,
		mux:      mux,
		now:      time.Now,
	}
	s.registerRoutes()
	return s
}

// writeJSON encodes v as the response body
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// corsMiddleware adds CORS headers to responses
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// authenticate resolves the caller from the Authorization header
func (s *Server) authenticate(r *http.Request) (*Identity, error) {
	if s.verifier == nil {
		return &Identity{UserID: LocalUserID}, nil
	}

	token, err := bearerToken(r.Header.Get("Authorization"))
	if err != nil {
		return nil, err
	}

	id, err := s.verifier.Verify(r.Context(), token)
	if err != nil {
		return nil, &AuthError{Code: CodeTokenVerificationFailed, Message: "Token verification failed", Err: err}
	}
	return id, nil
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := s.authenticate(r)
		if err != nil {
			var authErr *AuthError
			if !errors.As(err, &authErr) {
				authErr = &AuthError{Code: CodeTokenVerificationFailed, Message: "Token verification failed", Err: err}
			}
			slog.Warn("Rejected request", "path", r.URL.Path, "code", authErr.Code, "error", err)
			w.Header().Set("WWW-Authenticate", `Bearer realm="receipt-processor"`)
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": authErr.Message,
				"code":  authErr.Code,
			})
			return
		}
		next(w, r.WithContext(WithIdentity(r.Context(), id)))
	}
}

// registerRoutes registers all API routes on the server's mux
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}

	s.mux.HandleFunc("POST /api/session/validate", s.requireAuth(s.handleValidateSession))
	s.mux.HandleFunc("POST /api/parse", s.requireAuth(s.handleParseText))

	s.mux.HandleFunc("GET /api/receipts/export", s.requireAuth(s.handleExportReceipts))
	s.mux.HandleFunc("GET /api/receipts/{id}/file", s.requireAuth(s.handleGetReceiptFile))
	s.mux.HandleFunc("GET /api/receipts/{id}", s.requireAuth(s.handleGetReceipt))
	s.mux.HandleFunc("DELETE /api/receipts/{id}", s.requireAuth(s.handleDeleteReceipt))
	s.mux.HandleFunc("GET /api/receipts", s.requireAuth(s.handleListReceipts))
	s.mux.HandleFunc("POST /api/receipts", s.requireAuth(s.handleUploadReceipt))
}

// Handler returns the full handler chain
func (s *Server) Handler() http.Handler {
	return s.corsMiddleware(s.mux)
}

// Start starts the HTTP server
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Handler().ServeHTTP(w, r)
}
