package http

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"insurecharge/db"
	"insurecharge/ml"
	"insurecharge/monitoring"
)

//go:embed templates/index.html
var templateFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

const (
	defaultPredictionLimit = 20
	maxPredictionLimit     = 200
	maxMultipartMemory     = 32 << 10
)

// Evaluator runs one prediction from raw form fields.
type Evaluator interface {
	Evaluate(ctx context.Context, fields map[string]string) (*ml.Prediction, error)
}

// Handlers carries what the routes need. Feed and Metrics may be nil.
type Handlers struct {
	Predictor Evaluator
	Assets    *ml.AssetStore
	Bounds    ml.Bounds
	Feed      *FeedHub
	Metrics   *monitoring.MetricsCollector
	Logger    *zap.Logger
}

type predictResponse struct {
	Status     string  `json:"status"`
	Prediction float64 `json:"prediction"`
	Message    string  `json:"message"`
}

type errorBody struct {
	Error string `json:"error"`
}

func RegisterHandlers(mux *http.ServeMux, h *Handlers) {
	if h.Logger == nil {
		h.Logger = zap.NewNop()
	}
	mux.HandleFunc("GET /{$}", h.handleIndex)
	mux.HandleFunc("POST /predict", h.handlePredict)
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("GET /api/model", h.handleModel)
	mux.HandleFunc("GET /api/predictions", h.handleRecentPredictions)
	if h.Feed != nil {
		mux.HandleFunc("GET /api/ws/predictions", h.Feed.HandleWebSocket)
	}
	if h.Metrics != nil {
		mux.HandleFunc("GET /api/metrics", h.handleMetrics)
		mux.HandleFunc("GET /api/stats", h.handleStats)
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) handlePredict(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid input data: " + err.Error()})
		return
	}

	fields := make(map[string]string, len(ml.RequiredFields))
	for _, name := range ml.RequiredFields {
		if values, ok := r.PostForm[name]; ok && len(values) > 0 {
			fields[name] = values[0]
		}
	}

	p, err := h.Predictor.Evaluate(r.Context(), fields)
	if err == nil && (math.IsNaN(p.Charge) || math.IsInf(p.Charge, 0)) {
		err = fmt.Errorf("model returned a non-finite charge")
	}
	if err != nil {
		h.observe(outcomeOf(err), start, false)
		h.writePredictError(w, r, err)
		return
	}

	h.observe(monitoring.OutcomeSuccess, start, p.Cached)
	h.record(p)
	writeJSON(w, http.StatusOK, predictResponse{
		Status:     "success",
		Prediction: p.Charge,
		Message:    "Prediction successful",
	})
}

func (h *Handlers) writePredictError(w http.ResponseWriter, r *http.Request, err error) {
	var missing *ml.MissingFieldError
	switch {
	case errors.As(err, &missing):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: missing.Error()})
	case ml.IsClientError(err):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid input data: " + err.Error()})
	default:
		h.Logger.Error("prediction failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "An error occurred: " + err.Error()})
	}
}

func (h *Handlers) observe(outcome string, start time.Time, cached bool) {
	if h.Metrics != nil {
		h.Metrics.RecordPrediction(outcome, time.Since(start), cached)
	}
}

func outcomeOf(err error) string {
	var (
		missing     *ml.MissingFieldError
		invalid     *ml.InvalidInputError
		validation  *ml.ValidationError
		encoding    *ml.EncodingError
		unavailable *ml.ModelUnavailableError
	)
	switch {
	case errors.As(err, &missing):
		return monitoring.OutcomeMissingField
	case errors.As(err, &invalid):
		return monitoring.OutcomeInvalidInput
	case errors.As(err, &validation):
		return monitoring.OutcomeValidation
	case errors.As(err, &encoding):
		return monitoring.OutcomeEncoding
	case errors.As(err, &unavailable):
		return monitoring.OutcomeModelUnavailable
	default:
		return monitoring.OutcomeInternal
	}
}

// record logs the prediction and pushes it to the feed. Neither failure
// affects the response.
func (h *Handlers) record(p *ml.Prediction) {
	rec := db.PredictionRecord{
		Age:             p.Request.Age,
		Gender:          p.Request.Gender,
		BMI:             p.Request.BMI,
		Children:        p.Request.Children,
		Smoker:          p.Request.Smoker,
		Region:          p.Request.Region,
		Charge:          p.Charge,
		ModelGeneration: p.Generation,
		CreatedAt:       time.Now().UTC(),
	}
	id, err := db.SavePrediction(rec)
	if err != nil {
		h.Logger.Warn("prediction not logged", zap.Error(err))
	}
	rec.ID = id

	if h.Feed != nil {
		h.Feed.Publish(PredictionMessage, rec)
	}
}

func (h *Handlers) handleModel(w http.ResponseWriter, r *http.Request) {
	assets, err := h.Assets.Snapshot()
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "An error occurred: " + err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, modelInfo(assets))
}

func modelInfo(assets *ml.Assets) map[string]interface{} {
	return map[string]interface{}{
		"feature_names": assets.Model.FeatureNames(),
		"feature_count": assets.Model.FeatureCount(),
		"regions":       regions(assets),
		"generation":    assets.Generation,
		"loaded_at":     assets.LoadedAt,
	}
}

func (h *Handlers) handleRecentPredictions(w http.ResponseWriter, r *http.Request) {
	limit := defaultPredictionLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid input data: limit must be a positive integer"})
			return
		}
		limit = n
	}
	if limit > maxPredictionLimit {
		limit = maxPredictionLimit
	}

	records, err := db.RecentPredictions(limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "An error occurred: " + err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"predictions": records,
		"count":       len(records),
	})
}

func (h *Handlers) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if assets := h.Assets.Current(); assets != nil {
		h.Metrics.SetGeneration(assets.Generation)
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(h.Metrics.ExportPrometheus()))
}

func (h *Handlers) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"predictions": h.Metrics.GetSummary(),
		"system":      h.Metrics.GetSystemStats(),
	})
}

type indexData struct {
	Bounds  ml.Bounds
	Regions []string
	Error   string
}

func (h *Handlers) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := indexData{Bounds: h.Bounds}
	if assets, err := h.Assets.Snapshot(); err == nil {
		data.Regions = regions(assets)
	} else {
		data.Error = err.Error()
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, data); err != nil {
		h.Logger.Error("render index", zap.Error(err))
	}
}

// regions lists the region names the loaded model has one-hot columns for.
func regions(assets *ml.Assets) []string {
	var out []string
	for _, name := range assets.Model.FeatureNames() {
		if strings.HasPrefix(name, ml.RegionColumnPrefix) {
			out = append(out, strings.TrimPrefix(name, ml.RegionColumnPrefix))
		}
	}
	sort.Strings(out)
	return out
}

// writeJSON 统一JSON响应
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("failed to encode JSON", zap.Error(err))
	}
}
