package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/trogers1052/portfolio-analytics/internal/analytics"
	"github.com/trogers1052/portfolio-analytics/internal/csvio"
	"github.com/trogers1052/portfolio-analytics/internal/logger"
	"github.com/trogers1052/portfolio-analytics/internal/models"
)

const maxUploadSize = 32 << 20

// PnLService is what the handlers need from the service layer
type PnLService interface {
	Health(ctx context.Context) error
	History(ctx context.Context, filter models.QueryFilter) ([]models.PnLRecord, error)
	Portfolio(ctx context.Context, filter models.QueryFilter) ([]models.PnLRecord, error)
	MaxProfit(ctx context.Context, ticker string) ([]models.MaxProfitResult, error)
	ListTrades(ctx context.Context, filter models.QueryFilter) ([]*models.Trade, error)
	ListPrices(ctx context.Context, filter models.QueryFilter) ([]*models.PriceObservation, error)
	UploadTrades(ctx context.Context, trades []models.Trade) (int64, error)
	UploadPrices(ctx context.Context, prices []models.PriceObservation) (int64, error)
	DeleteTrades(ctx context.Context, ticker string) (int64, error)
	DeletePrices(ctx context.Context, ticker string) (int64, error)
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	svc PnLService
	log *slog.Logger
}

// NewHandler creates a new Handler
func NewHandler(svc PnLService, log *slog.Logger) *Handler {
	return &Handler{
		svc: svc,
		log: log,
	}
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Health(r.Context()); err != nil {
		h.log.Warn("health check failed", append(logger.Attrs(r.Context()), slog.Any("error", err))...)
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// GetTrades handles GET /trades
func (h *Handler) GetTrades(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.parseFilter(w, r)
	if !ok {
		return
	}

	trades, err := h.svc.ListTrades(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if trades == nil {
		trades = []*models.Trade{}
	}
	respondJSON(w, http.StatusOK, trades)
}

// UploadTrades handles POST /trades/upload
func (h *Handler) UploadTrades(w http.ResponseWriter, r *http.Request) {
	file, ok := h.uploadedFile(w, r)
	if !ok {
		return
	}
	defer file.Close()

	trades, err := csvio.ParseTrades(file)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	n, err := h.svc.UploadTrades(r.Context(), trades)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]int64{"inserted": n})
}

// DeleteTrades handles DELETE /trades/{ticker}
func (h *Handler) DeleteTrades(w http.ResponseWriter, r *http.Request) {
	ticker := mux.Vars(r)["ticker"]

	n, err := h.svc.DeleteTrades(r.Context(), ticker)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

type priceResponse struct {
	Date   string `json:"date"`
	Ticker string `json:"ticker"`
	Close  string `json:"close"`
}

// GetPrices handles GET /prices
func (h *Handler) GetPrices(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.parseFilter(w, r)
	if !ok {
		return
	}

	prices, err := h.svc.ListPrices(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	out := make([]priceResponse, 0, len(prices))
	for _, p := range prices {
		out = append(out, priceResponse{
			Date:   p.Date.Format(models.DateLayout),
			Ticker: p.Ticker,
			Close:  p.ClosePrice.String(),
		})
	}
	respondJSON(w, http.StatusOK, out)
}

// UploadPrices handles POST /prices/upload
func (h *Handler) UploadPrices(w http.ResponseWriter, r *http.Request) {
	file, ok := h.uploadedFile(w, r)
	if !ok {
		return
	}
	defer file.Close()

	prices, err := csvio.ParsePrices(file)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	n, err := h.svc.UploadPrices(r.Context(), prices)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]int64{"inserted": n})
}

// DeletePrices handles DELETE /prices/{ticker}
func (h *Handler) DeletePrices(w http.ResponseWriter, r *http.Request) {
	ticker := mux.Vars(r)["ticker"]

	n, err := h.svc.DeletePrices(r.Context(), ticker)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

// GetPnLHistory handles GET /pnl_history
func (h *Handler) GetPnLHistory(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.parseFilter(w, r)
	if !ok {
		return
	}

	records, err := h.svc.History(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondRecords(w, r, records)
}

// GetPortfolioHistory handles GET /pnl_history/portfolio
func (h *Handler) GetPortfolioHistory(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.parseFilter(w, r)
	if !ok {
		return
	}

	records, err := h.svc.Portfolio(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondRecords(w, r, records)
}

// GetMaxProfit handles GET /max_profit
func (h *Handler) GetMaxProfit(w http.ResponseWriter, r *http.Request) {
	results, err := h.svc.MaxProfit(r.Context(), strings.TrimSpace(r.URL.Query().Get("ticker")))
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	if wantsCSV(r) {
		w.Header().Set("Content-Type", "text/csv")
		if err := csvio.WriteMaxProfit(w, results); err != nil {
			h.log.Error("failed to write csv", slog.Any("error", err))
		}
		return
	}
	respondJSON(w, http.StatusOK, results)
}

func (h *Handler) respondRecords(w http.ResponseWriter, r *http.Request, records []models.PnLRecord) {
	if wantsCSV(r) {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="pnl_history.csv"`)
		if err := csvio.WriteRecords(w, records); err != nil {
			h.log.Error("failed to write csv", append(logger.Attrs(r.Context()), slog.Any("error", err))...)
		}
		return
	}
	if records == nil {
		records = []models.PnLRecord{}
	}
	respondJSON(w, http.StatusOK, records)
}

// parseFilter reads ticker, start_date and end_date. It writes a 400 and
// returns false on bad input.
func (h *Handler) parseFilter(w http.ResponseWriter, r *http.Request) (models.QueryFilter, bool) {
	q := r.URL.Query()
	filter := models.QueryFilter{Ticker: strings.TrimSpace(q.Get("ticker"))}

	parse := func(name string) (*time.Time, bool) {
		raw := q.Get(name)
		if raw == "" {
			return nil, true
		}
		d, err := models.ParseDate(raw)
		if err != nil {
			respondDetail(w, http.StatusBadRequest, name+": "+err.Error())
			return nil, false
		}
		return &d, true
	}

	var ok bool
	if filter.StartDate, ok = parse("start_date"); !ok {
		return filter, false
	}
	if filter.EndDate, ok = parse("end_date"); !ok {
		return filter, false
	}
	if filter.StartDate != nil && filter.EndDate != nil && filter.EndDate.Before(*filter.StartDate) {
		respondDetail(w, http.StatusBadRequest, "end_date must not be before start_date")
		return filter, false
	}

	switch f := q.Get("format"); f {
	case "", "json", "csv":
	default:
		respondDetail(w, http.StatusBadRequest, "format must be json or csv")
		return filter, false
	}
	return filter, true
}

func (h *Handler) uploadedFile(w http.ResponseWriter, r *http.Request) (multipart.File, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		respondDetail(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return nil, false
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		respondDetail(w, http.StatusBadRequest, "file is required")
		return nil, false
	}
	return file, true
}

// respondError maps CSV errors to 400 and engine validation errors to 422.
// Anything else is logged and returned as 500.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var perr *csvio.ParseError
	switch {
	case errors.As(err, &perr):
		respondDetail(w, http.StatusBadRequest, perr.Error())
	case analytics.IsValidationError(err):
		respondDetail(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.log.Error("request failed", append(logger.Attrs(r.Context()),
			slog.String("path", r.URL.Path), slog.Any("error", err))...)
		respondJSON(w, http.StatusInternalServerError, map[string]string{
			"detail": "Internal Server Error",
			"error":  err.Error(),
		})
	}
}

func wantsCSV(r *http.Request) bool {
	return r.URL.Query().Get("format") == "csv"
}

func respondDetail(w http.ResponseWriter, status int, detail string) {
	respondJSON(w, status, map[string]string{"detail": detail})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
