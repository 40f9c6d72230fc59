package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/iwvelando/premium-forecast/internal/config"
	"github.com/iwvelando/premium-forecast/internal/forecast"
	"github.com/iwvelando/premium-forecast/pkg/budget"
	"github.com/iwvelando/premium-forecast/pkg/constants"
	"github.com/iwvelando/premium-forecast/pkg/datetime"
	"github.com/iwvelando/premium-forecast/pkg/finance"
	"github.com/iwvelando/premium-forecast/pkg/output"
	"github.com/iwvelando/premium-forecast/pkg/phase"
	"github.com/iwvelando/premium-forecast/pkg/records"
	"go.uber.org/zap"
)

// RequestIDHeader carries the identifier of a request in both directions.
const RequestIDHeader = "X-Request-ID"

type contextKey struct{}

type handler struct {
	logger        *zap.Logger
	maxUploadSize int64
	version       string
	timeout       time.Duration
	base          *config.Configuration
	cache         *finance.FitCache
	now           func() time.Time
}

// Options configures NewHandler. Zero values select defaults.
type Options struct {
	MaxUploadSize int64
	Version       string
	Timeout       time.Duration
	// Base seeds the configuration of every request. It is cloned, never
	// modified.
	Base *config.Configuration
	now  func() time.Time
}

// NewHandler constructs the HTTP handler that serves the forecast API.
func NewHandler(logger *zap.Logger, opts Options) (http.Handler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = constants.DefaultMaxUploadSizeBytes
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultRequestTimeout
	}

	trimmedVersion := strings.TrimSpace(opts.Version)
	if trimmedVersion == "" {
		trimmedVersion = "dev"
	}

	base := opts.Base
	if base == nil {
		var err error
		base, err = config.LoadConfigurationFromReader(strings.NewReader(""))
		if err != nil {
			return nil, err
		}
	}
	if opts.now == nil {
		opts.now = time.Now
	}

	entries := base.Forecast.CacheEntries
	if entries <= 0 {
		entries = constants.DefaultFitCacheEntries
	}

	h := &handler{
		logger:        logger,
		maxUploadSize: opts.MaxUploadSize,
		version:       trimmedVersion,
		timeout:       opts.Timeout,
		base:          base,
		cache:         finance.NewFitCache(entries),
		now:           opts.now,
	}

	r := mux.NewRouter()
	r.Use(h.requestID, h.accessLog)

	// Routes stay on the root router so a method mismatch answers 405.
	r.HandleFunc("/api/forecast", h.handleForecast).Methods(http.MethodPost)
	r.HandleFunc("/api/budget", h.handleBudget).Methods(http.MethodPost)
	r.HandleFunc("/api/calendar/{year:[0-9]{4}}", h.handleCalendar).Methods(http.MethodGet)
	r.HandleFunc("/api/version", h.handleVersion).Methods(http.MethodGet)

	return r, nil
}

func (h *handler) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (h *handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.logger.Info("request",
			zap.String("op", "server.accessLog"),
			zap.String("requestId", requestIDFrom(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

type forecastResponse struct {
	RequestID     string         `json:"requestId"`
	ReferenceYear int            `json:"referenceYear"`
	Cutoff        string         `json:"cutoff"`
	View          string         `json:"view"`
	Lines         []lineResponse `json:"lines"`
	Calendar      []calendarRow  `json:"calendar"`
	BudgetYear    int            `json:"budgetYear,omitempty"`
	Budget        []budget.Row   `json:"budget,omitempty"`
	CSV           string         `json:"csv"`
	Warnings      []string       `json:"warnings,omitempty"`
	Duration      string         `json:"duration"`
}

type lineResponse struct {
	Line    string           `json:"line"`
	Model   string           `json:"model"`
	SMAPE   *float64         `json:"smape"`
	Partial string           `json:"partial,omitempty"`
	Rows    []forecastRow    `json:"rows"`
	Summary forecast.Summary `json:"summary"`
}

type forecastRow struct {
	Date       string  `json:"date"`
	Forecast   float64 `json:"forecast"`
	Adjusted   float64 `json:"adjusted"`
	Lower      float64 `json:"lower"`
	Upper      float64 `json:"upper"`
	Cumulative float64 `json:"cumulative"`
}

type calendarRow struct {
	Month       string  `json:"month"`
	Phase       string  `json:"phase"`
	Factor      float64 `json:"factor"`
	Impact      string  `json:"impact"`
	Description string  `json:"description"`
}

type budgetResponse struct {
	RequestID     string       `json:"requestId"`
	TargetYear    int          `json:"targetYear"`
	IPCAdjustment float64      `json:"ipcAdjustment"`
	Rows          []budget.Row `json:"rows"`
	TotalBase     float64      `json:"totalBase"`
	TotalAdjusted float64      `json:"totalAdjusted"`
	CSV           string       `json:"csv"`
	Duration      string       `json:"duration"`
}

func (h *handler) handleForecast(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleForecast"
	start := time.Now()

	recs, conf, ok := h.readUpload(w, r, op)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	report, err := forecast.GetForecast(ctx, h.logger, *conf, recs, forecast.WithFitCache(h.cache))
	if err != nil {
		h.respondComputeError(w, r, err, op)
		return
	}

	var csvBuf bytes.Buffer
	if err := output.CsvFormat(&csvBuf, report); err != nil {
		h.respondError(w, r, http.StatusInternalServerError, fmt.Sprintf("failed to render CSV: %v", err), op)
		return
	}

	elapsed := time.Since(start)
	response := forecastResponse{
		RequestID:     requestIDFrom(r.Context()),
		ReferenceYear: report.ReferenceYear,
		Cutoff:        report.Cutoff.Format(datetime.DayLayout),
		View:          report.View,
		Lines:         buildLines(report),
		Calendar:      buildCalendar(report.Calendar),
		BudgetYear:    report.BudgetYear,
		Budget:        report.Budget,
		CSV:           csvBuf.String(),
		Warnings:      report.Warnings,
		Duration:      elapsed.String(),
	}

	h.logger.Info("forecast computed",
		zap.String("op", op),
		zap.String("requestId", response.RequestID),
		zap.Int("records", len(recs)),
		zap.Int("lines", len(response.Lines)),
		zap.Duration("duration", elapsed),
	)

	h.writeJSON(w, http.StatusOK, response)
}

func (h *handler) handleBudget(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleBudget"
	start := time.Now()

	recs, conf, ok := h.readUpload(w, r, op)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	rows, err := forecast.GetBudget(ctx, h.logger, *conf, forecast.UpToMonth(recs, conf.Forecast.CutoffDate))
	if err != nil {
		h.respondComputeError(w, r, err, op)
		return
	}

	var csvBuf bytes.Buffer
	if err := output.BudgetCSV(&csvBuf, rows); err != nil {
		h.respondError(w, r, http.StatusInternalServerError, fmt.Sprintf("failed to render CSV: %v", err), op)
		return
	}

	base, adjusted := budget.Totals(rows)
	h.writeJSON(w, http.StatusOK, budgetResponse{
		RequestID:     requestIDFrom(r.Context()),
		TargetYear:    conf.Budget.TargetYear,
		IPCAdjustment: conf.Budget.IPCAdjustment,
		Rows:          rows,
		TotalBase:     base,
		TotalAdjusted: adjusted,
		CSV:           csvBuf.String(),
		Duration:      time.Since(start).String(),
	})
}

func (h *handler) handleCalendar(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleCalendar"
	year, err := strconv.Atoi(mux.Vars(r)["year"])
	if err != nil {
		h.respondError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid year: %v", err), op)
		return
	}

	conf := h.base.Clone()
	if err := conf.NormalizeWithFixedTime(h.now()); err != nil {
		h.respondError(w, r, http.StatusInternalServerError, err.Error(), op)
		return
	}
	cal, err := conf.Calendar()
	if err != nil {
		h.respondError(w, r, http.StatusInternalServerError, err.Error(), op)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"year": year,
		"line": cal.Line(),
		"rows": buildCalendar(cal.ImpactSummary(year)),
	})
}

func (h *handler) handleVersion(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"version": h.version,
	})
}

// readUpload parses the multipart upload, its records file and the form
// overrides. It writes the error response itself and reports false on
// failure.
func (h *handler) readUpload(w http.ResponseWriter, r *http.Request, op string) ([]records.Record, *config.Configuration, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			h.respondError(w, r, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds limit of %d bytes", h.maxUploadSize), op)
			return nil, nil, false
		}
		h.respondError(w, r, http.StatusBadRequest, fmt.Sprintf("failed to parse upload: %v", err), op)
		return nil, nil, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.respondError(w, r, http.StatusBadRequest, "missing records file", op)
		return nil, nil, false
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			h.logger.Warn("failed to close uploaded file",
				zap.String("op", op),
				zap.Error(closeErr),
			)
		}
	}()

	recs, err := records.ParseCSV(file)
	if err != nil {
		h.respondError(w, r, http.StatusBadRequest, fmt.Sprintf("error reading records, %v", err), op)
		return nil, nil, false
	}
	if len(recs) == 0 {
		h.respondError(w, r, http.StatusBadRequest, "no dated records in upload", op)
		return nil, nil, false
	}

	conf, err := h.requestConfig(r, header.Filename)
	if err != nil {
		h.respondError(w, r, http.StatusBadRequest, err.Error(), op)
		return nil, nil, false
	}
	return recs, conf, true
}

// requestConfig applies the form overrides of r to a clone of the base
// configuration and normalizes it.
func (h *handler) requestConfig(r *http.Request, filename string) (*config.Configuration, error) {
	conf := h.base.Clone()
	conf.Data = config.DataConfig{Source: constants.DataSourceCSV, Path: filename}

	f := &conf.Forecast
	if v := formValue(r, "cutoff"); v != "" {
		f.Cutoff = v
	}
	if v := formValue(r, "view"); v != "" {
		f.View = v
	}
	ints := []struct {
		key    string
		target *int
	}{
		{"referenceYear", &f.ReferenceYear},
		{"steps", &f.Steps},
		{"evalMonths", &f.EvalMonths},
		{"targetYear", &conf.Budget.TargetYear},
	}
	for _, field := range ints {
		if err := parseInt(r, field.key, field.target); err != nil {
			return nil, err
		}
	}
	floats := []struct {
		key    string
		target *float64
	}{
		{"conservativeAdjustment", &f.ConservativeAdjustment},
		{"ipcAdjustment", &conf.Budget.IPCAdjustment},
	}
	for _, field := range floats {
		if err := parseFloat(r, field.key, field.target); err != nil {
			return nil, err
		}
	}

	if err := conf.NormalizeWithFixedTime(h.now()); err != nil {
		return nil, err
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func formValue(r *http.Request, key string) string {
	return strings.TrimSpace(r.FormValue(key))
}

func parseInt(r *http.Request, key string, target *int) error {
	v := formValue(r, key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q", key, v)
	}
	*target = n
	return nil
}

func parseFloat(r *http.Request, key string, target *float64) error {
	v := formValue(r, key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return fmt.Errorf("invalid %s %q", key, v)
	}
	*target = n
	return nil
}

func buildLines(report *forecast.Report) []lineResponse {
	lines := make([]lineResponse, 0, len(report.Lines))
	for _, lf := range report.Lines {
		line := lineResponse{
			Line:    lf.Line,
			Model:   lf.Result.Model,
			SMAPE:   finite(lf.Result.SMAPE),
			Rows:    make([]forecastRow, 0, len(lf.Result.Forecast)),
			Summary: lf.Summary,
		}
		if lf.Partial != nil {
			line.Partial = lf.Partial.Format(datetime.DateTimeLayout)
		}
		for i, row := range lf.Result.Forecast {
			line.Rows = append(line.Rows, forecastRow{
				Date:       row.Date.Format(datetime.DateTimeLayout),
				Forecast:   row.Monthly,
				Adjusted:   lf.Adjusted[i],
				Lower:      row.Lower,
				Upper:      row.Upper,
				Cumulative: row.Cumulative,
			})
		}
		lines = append(lines, line)
	}
	return lines
}

func buildCalendar(rows []phase.ImpactRow) []calendarRow {
	out := make([]calendarRow, len(rows))
	for i, row := range rows {
		out[i] = calendarRow{
			Month:       row.Month.Format(datetime.DateTimeLayout),
			Phase:       string(row.Tag),
			Factor:      row.Factor,
			Impact:      row.Impact,
			Description: row.Description,
		}
	}
	return out
}

// finite drops values JSON cannot carry.
func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func (h *handler) respondComputeError(w http.ResponseWriter, r *http.Request, err error, op string) {
	status := http.StatusInternalServerError
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}
	h.respondError(w, r, status, fmt.Sprintf("failed to compute forecast: %v", err), op)
}

func (h *handler) respondError(w http.ResponseWriter, r *http.Request, status int, msg string, op string) {
	h.logger.Error("request failed",
		zap.String("op", op),
		zap.String("requestId", requestIDFrom(r.Context())),
		zap.Int("status", status),
		zap.String("error", msg),
	)

	h.writeJSON(w, status, map[string]string{"error": msg})
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", zap.Error(err))
	}
}
