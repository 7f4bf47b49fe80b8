package filter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mikey/phishing-detector/internal/config"
	"github.com/mikey/phishing-detector/internal/core"
	"github.com/mikey/phishing-detector/internal/detector"
	"github.com/mikey/phishing-detector/internal/ports"
)

const shutdownTimeout = 5 * time.Second

// HTTPFilter serves the detector as a JSON API
type HTTPFilter struct {
	detector ports.Detector
	logger   *zap.Logger
	cfg      config.ServerConfig
	limiter  *rate.Limiter
	server   *http.Server
	listener net.Listener
}

// NewHTTPFilter creates the HTTP front end. A non-positive rate limit
// disables throttling.
func NewHTTPFilter(svc ports.Detector, logger *zap.Logger, cfg config.ServerConfig) *HTTPFilter {
	f := &HTTPFilter{
		detector: svc,
		logger:   logger,
		cfg:      cfg,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return f
}

// Handler returns the router with all routes mounted
func (f *HTTPFilter) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(f.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ok(w, map[string]string{"status": "ok", "service": "phishing-detector"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(f.rateLimit)
		r.Post("/predict", f.predict)
		r.Get("/terms", f.terms)
		r.Post("/model/reload", f.reload)
	})

	return r
}

// Start binds the listener and serves in the background
func (f *HTTPFilter) Start() error {
	l, err := net.Listen("tcp", f.cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", f.cfg.ListenAddress, err)
	}
	f.listener = l
	f.server = &http.Server{
		Handler:           f.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	f.logger.Info("HTTP filter starting", zap.String("address", l.Addr().String()))

	go func() {
		if err := f.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			f.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound listen address once started
func (f *HTTPFilter) Addr() string {
	if f.listener == nil {
		return f.cfg.ListenAddress
	}
	return f.listener.Addr().String()
}

// Stop gracefully shuts the server down
func (f *HTTPFilter) Stop() error {
	if f.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return f.server.Shutdown(ctx)
}

// ProcessEmail classifies raw email text
func (f *HTTPFilter) ProcessEmail(ctx context.Context, raw string) (*core.PredictionResult, error) {
	return f.detector.PredictEmail(ctx, raw)
}

// ─── Handlers ─────────────────────────────────────────────────────────────────

type predictRequest struct {
	Email string `json:"email"`
}

// predict accepts either {"email": "..."} as JSON or a message/rfc822 body
func (f *HTTPFilter) predict(w http.ResponseWriter, r *http.Request) {
	if f.cfg.MaxMessageBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, f.cfg.MaxMessageBytes)
	}

	var raw string
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "message/rfc822":
		data, err := io.ReadAll(r.Body)
		if err != nil {
			badRequest(w, "INVALID_BODY", err.Error())
			return
		}
		text, err := MessageText(data)
		if err != nil {
			badRequest(w, "INVALID_MESSAGE", err.Error())
			return
		}
		raw = text
	default:
		var req predictRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "INVALID_JSON", "request body must be a JSON object with an 'email' field")
			return
		}
		raw = req.Email
	}

	result, err := f.detector.PredictEmail(r.Context(), raw)
	if err != nil {
		f.fail(w, err)
		return
	}
	ok(w, result)
}

func (f *HTTPFilter) terms(w http.ResponseWriter, r *http.Request) {
	n := 0
	if q := r.URL.Query().Get("n"); q != "" {
		v, err := strconv.Atoi(q)
		if err != nil || v <= 0 {
			badRequest(w, "INVALID_PARAMETER", "n must be a positive integer")
			return
		}
		n = v
	}
	terms, err := f.detector.GlobalTerms(r.Context(), n)
	if err != nil {
		f.fail(w, err)
		return
	}
	ok(w, map[string]any{"terms": terms})
}

func (f *HTTPFilter) reload(w http.ResponseWriter, r *http.Request) {
	version, err := f.detector.Reload(r.Context())
	if err != nil {
		f.fail(w, err)
		return
	}
	f.logger.Info("Model reloaded over HTTP", zap.String("version", version))
	ok(w, map[string]string{"model_version": version})
}

func (f *HTTPFilter) fail(w http.ResponseWriter, err error) {
	if errors.Is(err, detector.ErrModelUnavailable) {
		f.logger.Warn("Model unavailable", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, envelope{
			Error: &apiError{Code: "MODEL_UNAVAILABLE", Message: "model unavailable"},
		})
		return
	}
	f.logger.Error("Request failed", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, envelope{
		Error: &apiError{Code: "INTERNAL_ERROR", Message: "an unexpected error occurred"},
	})
}

// ─── Middleware ───────────────────────────────────────────────────────────────

func (f *HTTPFilter) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if f.limiter != nil && !f.limiter.Allow() {
			writeJSON(w, http.StatusTooManyRequests, envelope{
				Error: &apiError{Code: "RATE_LIMITED", Message: "too many requests"},
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *HTTPFilter) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		f.logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// ─── Response envelope ────────────────────────────────────────────────────────

// envelope wraps every API response. Exactly one of Data and Error is set.
type envelope struct {
	Data  any       `json:"data,omitempty"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func ok(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Data: data})
}

func badRequest(w http.ResponseWriter, code, message string) {
	writeJSON(w, http.StatusBadRequest, envelope{Error: &apiError{Code: code, Message: message}})
}
