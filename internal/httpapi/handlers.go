package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"vacenf.org/internal/cep"
	"vacenf.org/internal/draft"
	"vacenf.org/internal/obs"
	"vacenf.org/internal/registry"
	"vacenf.org/internal/stream"
)

// ReadyProbe checks backing-service readiness (e.g. a database ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Config carries the knobs the HTTP layer needs.
type Config struct {
	Version       string
	TokenTTL      time.Duration
	CookieMaxAge  time.Duration
	RateBurst     int
	RatePerSecond int
}

// API is the HTTP layer over the cold-chain registry.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	registry registry.Service
	stream   *stream.Stream
	drafts   *draft.Store
	cep      *cep.Client

	tokenTTL     time.Duration
	cookieMaxAge time.Duration
	rateBurst    int
	ratePerSec   int
}

func New(rp ReadyProbe, reg registry.Service, st *stream.Stream, drafts *draft.Store, cepClient *cep.Client, cfg Config) *API {
	a := &API{
		mux:          http.NewServeMux(),
		readyProbe:   rp,
		version:      cfg.Version,
		registry:     reg,
		stream:       st,
		drafts:       drafts,
		cep:          cepClient,
		tokenTTL:     cfg.TokenTTL,
		cookieMaxAge: cfg.CookieMaxAge,
		rateBurst:    cfg.RateBurst,
		ratePerSec:   cfg.RatePerSecond,
	}
	if a.rateBurst <= 0 {
		a.rateBurst = 20
	}
	if a.ratePerSec <= 0 {
		a.ratePerSec = 10
	}
	if a.tokenTTL <= 0 {
		a.tokenTTL = 12 * time.Hour
	}
	if a.cookieMaxAge <= 0 {
		a.cookieMaxAge = 30 * 24 * time.Hour
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// auth
	a.mux.HandleFunc("/auth/login", a.handleLogin)
	a.mux.HandleFunc("/auth/me", a.handleMe)
	a.mux.HandleFunc("/auth/logout", a.handleLogout)

	// daily operations
	a.mux.HandleFunc("/dia-trabalho", a.handleWorkDay)
	a.mux.HandleFunc("/reg-temperatura", a.handleReadingsCollection)
	a.mux.HandleFunc("/reg-temperatura/", a.handleReadingsResource)
	a.mux.HandleFunc("/vacina-estoque", a.handleStockCollection)
	a.mux.HandleFunc("/vacina-estoque/", a.handleStockResource)
	a.mux.HandleFunc("/transferencia", a.handleTransfer)
	a.mux.HandleFunc("/reg-limpeza", a.handleCleaning)

	// administration
	a.mux.HandleFunc("/salas", a.handleRoomsCollection)
	a.mux.HandleFunc("/salas/", a.handleRoomResource)
	a.mux.HandleFunc("/estoques", a.handleStorageUnits)
	a.mux.HandleFunc("/profissionais", a.handleProfessionalsCollection)
	a.mux.HandleFunc("/profissionais/", a.handleProfessionalResource)

	// postal code lookup proxy
	a.mux.HandleFunc("/cep/", a.handleCEP)

	// staged registration
	a.mux.HandleFunc("/cadastro", a.handleRegistrationCollection)
	a.mux.HandleFunc("/cadastro/", a.handleRegistrationResource)

	// monitoring feed
	a.mux.HandleFunc("/alertas/stream", a.StreamAlerts)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the full middleware-wrapped handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- infra handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "vacenf-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "vacenf-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeResult wraps successful payloads the way the web client expects.
func writeResult(w http.ResponseWriter, code int, v any) {
	writeJSON(w, code, map[string]any{"result": v})
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// writeViolations reports field-level validation failures.
func writeViolations(w http.ResponseWriter, r *http.Request, v map[string]string) {
	payload := map[string]any{
		"error":  "dados inválidos",
		"campos": v,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, http.StatusUnprocessableEntity, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func handleRegistryError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, registry.ErrInvalidQuantity),
		errors.Is(err, registry.ErrEmptyBatch),
		errors.Is(err, registry.ErrInvalidStatus),
		errors.Is(err, registry.ErrExpiredLot):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, registry.ErrInsufficientStock),
		errors.Is(err, registry.ErrSameUnit),
		errors.Is(err, registry.ErrAlreadyExists):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, registry.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
