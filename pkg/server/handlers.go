package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/EmilyTench10/prueba-tecnica-lite-thinking/pkg/api"
	"github.com/EmilyTench10/prueba-tecnica-lite-thinking/pkg/auth"
	"github.com/EmilyTench10/prueba-tecnica-lite-thinking/pkg/ledger"
	"github.com/EmilyTench10/prueba-tecnica-lite-thinking/pkg/query"
	"github.com/EmilyTench10/prueba-tecnica-lite-thinking/pkg/recorder"
)

// maxBodyBytes bounds POST bodies.
const maxBodyBytes = 1 << 20

// LedgerService exposes the ledger over HTTP.
type LedgerService struct {
	ledger   *ledger.Ledger
	recorder *recorder.Recorder
	query    *query.Engine
	logger   *slog.Logger
}

// NewLedgerService creates the HTTP handlers for l.
func NewLedgerService(l *ledger.Ledger, rec *recorder.Recorder, q *query.Engine) *LedgerService {
	return &LedgerService{
		ledger:   l,
		recorder: rec,
		query:    q,
		logger:   slog.Default().With("component", "ledger-api"),
	}
}

// RegisterRequest is the body of a manual registration.
type RegisterRequest struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeLedgerError maps ledger, recorder and query errors onto problem responses.
func (s *LedgerService) writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, recorder.ErrForbidden):
		api.WriteForbidden(w, r, "Admin role required")
	case errors.Is(err, ledger.ErrNotFound):
		api.WriteNotFound(w, r, err.Error())
	case errors.Is(err, recorder.ErrUnknownType),
		errors.Is(err, recorder.ErrInvalidPayload),
		errors.Is(err, ledger.ErrInvalidRecord),
		errors.Is(err, ledger.ErrPayloadSerialization),
		errors.Is(err, query.ErrInvalidFilter),
		errors.Is(err, query.ErrInvalidPaging):
		api.WriteBadRequest(w, r, err.Error())
	case errors.Is(err, ledger.ErrTemporalOrdering),
		errors.Is(err, ledger.ErrConcurrentAppend):
		api.WriteConflict(w, r, err.Error())
	default:
		auth.Logger(r.Context(), s.logger).Error("ledger request failed", "path", r.URL.Path, "error", err)
		api.WriteInternal(w, r, err)
	}
}

func intParam(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

// HandleList serves GET /api/v1/ledger/records.
func (s *LedgerService) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit")
	if err != nil {
		api.WriteBadRequest(w, r, "limit must be an integer")
		return
	}
	offset, err := intParam(r, "offset")
	if err != nil {
		api.WriteBadRequest(w, r, "offset must be an integer")
		return
	}

	records, err := s.ledger.GetAll(r.Context())
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	page, err := s.query.Apply(r.Context(), records, query.Options{
		Type:   r.URL.Query().Get("type"),
		Filter: r.URL.Query().Get("filter"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// HandleGet serves GET /api/v1/ledger/records/{index}.
func (s *LedgerService) HandleGet(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.ParseInt(r.PathValue("index"), 10, 64)
	if err != nil || index < 0 {
		api.WriteBadRequest(w, r, "index must be a non-negative integer")
		return
	}
	rec, err := s.ledger.Get(r.Context(), index)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleVerify serves GET /api/v1/ledger/verify. An invalid chain is still a 200.
func (s *LedgerService) HandleVerify(w http.ResponseWriter, r *http.Request) {
	res, err := s.ledger.Verify(r.Context())
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	if !res.Valid {
		auth.Logger(r.Context(), s.logger).Warn("ledger integrity findings", "findings", len(res.Errors))
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleStats serves GET /api/v1/ledger/stats.
func (s *LedgerService) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.ledger.Statistics(r.Context())
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// HandleRegister serves POST /api/v1/ledger/records.
func (s *LedgerService) HandleRegister(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req RegisterRequest
	// Keep numbers as literals; the ledger rejects integers it cannot hash exactly.
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		api.WriteBadRequest(w, r, "Invalid request body")
		return
	}
	rec, err := s.recorder.Register(r.Context(), req.Type, req.Payload)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// HandleTypes serves GET /api/v1/ledger/types.
func (s *LedgerService) HandleTypes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, recorder.Catalogue())
}

// HandleHealth serves GET /health.
func HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
