package http

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insurecharge/db"
	"insurecharge/ml"
	"insurecharge/monitoring"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "insurecharge-http")
	if err != nil {
		panic(err)
	}
	if err := db.InitDB(filepath.Join(dir, "test.db")); err != nil {
		panic(err)
	}

	code := m.Run()

	db.Close()
	os.RemoveAll(dir)
	os.Exit(code)
}

func testStore(t *testing.T) *ml.AssetStore {
	t.Helper()
	names := []string{"age", "gender", "bmi", "children", "smoker",
		"region_northeast", "region_northwest", "region_southeast", "region_southwest"}
	model, err := ml.NewLinearModel(names, []float64{250, -100, 330, 480, 23000, 500, 200, -400, -300}, -12000)
	require.NoError(t, err)
	enc, err := ml.NewCategoryEncoding(
		map[string]float64{"male": 1, "female": 0},
		map[string]float64{"yes": 1, "no": 0},
	)
	require.NoError(t, err)
	assets, err := ml.NewAssets(model, enc)
	require.NoError(t, err)
	return ml.NewStaticAssetStore(assets)
}

func newTestHandler(t *testing.T, feed *FeedHub) http.Handler {
	t.Helper()
	store := testStore(t)
	h := &Handlers{
		Predictor: ml.NewService(store, ml.DefaultBounds(), ml.WithCache(8)),
		Assets:    store,
		Bounds:    ml.DefaultBounds(),
		Feed:      feed,
	}
	return NewHandler(DefaultServerConfig(), h, nil)
}

func validForm() url.Values {
	return url.Values{
		"age":      {"35"},
		"gender":   {"female"},
		"bmi":      {"27.3"},
		"children": {"2"},
		"smoker":   {"no"},
		"region":   {"northeast"},
	}
}

func postForm(t *testing.T, handler http.Handler, form url.Values) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload), w.Body.String())
	return w, payload
}

func TestHealthHandler(t *testing.T) {
	req, err := http.NewRequest("GET", "/api/health", nil)
	if err != nil {
		t.Fatal(err)
	}

	rr := httptest.NewRecorder()
	handler := http.HandlerFunc(handleHealth)

	handler.ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusOK {
		t.Errorf("handler returned wrong status code: got %v want %v", status, http.StatusOK)
	}

	expected := `{"status":"ok"}`
	if rr.Body.String() != expected+"\n" && rr.Body.String() != expected {
		t.Errorf("handler returned unexpected body: got %v want %v", rr.Body.String(), expected)
	}
}

func TestHandlePredict(t *testing.T) {
	handler := newTestHandler(t, nil)

	w, payload := postForm(t, handler, validForm())

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", payload["status"])
	assert.Equal(t, "Prediction successful", payload["message"])
	want := -12000 + 250*35.0 + 330*27.3 + 480*2 + 500
	assert.InDelta(t, want, payload["prediction"].(float64), 1e-6)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	records, err := db.RecentPredictions(1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "northeast", records[0].Region)
	assert.InDelta(t, want, records[0].Charge, 1e-6)
}

func TestHandlePredictMultipart(t *testing.T) {
	handler := newTestHandler(t, nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for key, values := range validForm() {
		require.NoError(t, mw.WriteField(key, values[0]))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/predict", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestHandlePredictErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(url.Values)
		status int
		error  string
		prefix bool
	}{
		{"missing age", func(f url.Values) { f.Del("age") }, http.StatusBadRequest, "Missing required field: age", false},
		{"missing region", func(f url.Values) { f.Del("region") }, http.StatusBadRequest, "Missing required field: region", false},
		{"non numeric age", func(f url.Values) { f.Set("age", "abc") }, http.StatusBadRequest, "Invalid input data: ", true},
		{"age too low", func(f url.Values) { f.Set("age", "17") }, http.StatusBadRequest, "Invalid input data: Age must be between 18 and 100", false},
		{"bmi too low", func(f url.Values) { f.Set("bmi", "9.9") }, http.StatusBadRequest, "Invalid input data: BMI must be between 10 and 50", false},
		{"too many children", func(f url.Values) { f.Set("children", "6") }, http.StatusBadRequest, "Invalid input data: Number of children must be between 0 and 5", false},
		{"bad smoker", func(f url.Values) { f.Set("smoker", "sometimes") }, http.StatusBadRequest, "Invalid input data: Smoker must be either 'yes' or 'no'", false},
		{"unknown region", func(f url.Values) { f.Set("region", "mars") }, http.StatusBadRequest, "Invalid input data: ", true},
	}

	handler := newTestHandler(t, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := validForm()
			tt.mutate(form)

			w, payload := postForm(t, handler, form)

			assert.Equal(t, tt.status, w.Code)
			msg, _ := payload["error"].(string)
			if tt.prefix {
				assert.True(t, strings.HasPrefix(msg, tt.error), msg)
			} else {
				assert.Equal(t, tt.error, msg)
			}
		})
	}
}

func TestHandlePredictCaseInsensitiveGender(t *testing.T) {
	handler := newTestHandler(t, nil)

	for _, g := range []string{"Male", "MALE"} {
		form := validForm()
		form.Set("gender", g)
		w, _ := postForm(t, handler, form)
		assert.Equal(t, http.StatusOK, w.Code, g)
	}
}

func TestHandlePredictModelUnavailable(t *testing.T) {
	dir := t.TempDir()
	store := ml.NewAssetStore(ml.AssetSource{
		ModelType:    ml.LinearRegressionType,
		ModelPath:    filepath.Join(dir, "missing.json"),
		EncodingPath: filepath.Join(dir, "missing_encoding.json"),
	})
	h := &Handlers{Predictor: ml.NewService(store, ml.DefaultBounds()), Assets: store, Bounds: ml.DefaultBounds()}
	handler := NewHandler(DefaultServerConfig(), h, nil)

	w, payload := postForm(t, handler, validForm())

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.True(t, strings.HasPrefix(payload["error"].(string), "An error occurred: "), payload["error"])

	req := httptest.NewRequest(http.MethodGet, "/api/model", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestHandlePredictValidatesWithoutAssets(t *testing.T) {
	dir := t.TempDir()
	store := ml.NewAssetStore(ml.AssetSource{
		ModelType:    ml.LinearRegressionType,
		ModelPath:    filepath.Join(dir, "missing.json"),
		EncodingPath: filepath.Join(dir, "missing_encoding.json"),
	})
	h := &Handlers{Predictor: ml.NewService(store, ml.DefaultBounds()), Assets: store, Bounds: ml.DefaultBounds()}
	handler := NewHandler(DefaultServerConfig(), h, nil)

	form := validForm()
	form.Set("age", "17")
	w, payload := postForm(t, handler, form)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid input data: Age must be between 18 and 100", payload["error"])
}

type panickingEvaluator struct{}

func (panickingEvaluator) Evaluate(ctx context.Context, fields map[string]string) (*ml.Prediction, error) {
	panic("boom")
}

func TestRecoveryMiddleware(t *testing.T) {
	store := testStore(t)
	h := &Handlers{Predictor: panickingEvaluator{}, Assets: store, Bounds: ml.DefaultBounds()}
	handler := NewHandler(DefaultServerConfig(), h, nil)

	w, payload := postForm(t, handler, validForm())

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "An error occurred: internal server error", payload["error"])
}

func TestHandleModel(t *testing.T) {
	handler := newTestHandler(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/model", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	assert.Equal(t, float64(9), payload["feature_count"])
	assert.Equal(t, []interface{}{"northeast", "northwest", "southeast", "southwest"}, payload["regions"])
}

func TestHandleRecentPredictions(t *testing.T) {
	handler := newTestHandler(t, nil)
	postForm(t, handler, validForm())

	req := httptest.NewRequest(http.MethodGet, "/api/predictions?limit=1", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	assert.Equal(t, float64(1), payload["count"])

	req = httptest.NewRequest(http.MethodGet, "/api/predictions?limit=-3", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleIndex(t *testing.T) {
	handler := newTestHandler(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `<form method="post" action="/predict">`)
	assert.Contains(t, body, `<option value="southwest">`)
	assert.Contains(t, body, `max="100"`)

	req = httptest.NewRequest(http.MethodGet, "/nope", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPredictRejectsGet(t *testing.T) {
	handler := newTestHandler(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/predict", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestMetricsEndpoints(t *testing.T) {
	store := testStore(t)
	metrics := monitoring.NewMetricsCollector()
	handler := NewHandler(DefaultServerConfig(), &Handlers{
		Predictor: ml.NewService(store, ml.DefaultBounds(), ml.WithCache(8)),
		Assets:    store,
		Bounds:    ml.DefaultBounds(),
		Metrics:   metrics,
	}, nil)

	rec, _ := postForm(t, handler, validForm())
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = postForm(t, handler, validForm())
	require.Equal(t, http.StatusOK, rec.Code)

	form := validForm()
	form.Set("region", "atlantis")
	rec, _ = postForm(t, handler, form)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	form = validForm()
	form.Del("smoker")
	rec, _ = postForm(t, handler, form)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, int64(2), metrics.Count(monitoring.OutcomeSuccess))
	assert.Equal(t, int64(1), metrics.Count(monitoring.OutcomeEncoding))
	assert.Equal(t, int64(1), metrics.Count(monitoring.OutcomeMissingField))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `insurecharge_predictions_total{outcome="success"} 2`)
	assert.Contains(t, rec.Body.String(), "insurecharge_prediction_cache_hits_total 1\n")

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "predictions")
	assert.Contains(t, body, "system")
}

func TestOutcomeOf(t *testing.T) {
	cases := map[error]string{
		&ml.MissingFieldError{Field: "age"}:                  monitoring.OutcomeMissingField,
		&ml.InvalidInputError{Field: "bmi", Value: "x"}:      monitoring.OutcomeInvalidInput,
		&ml.ValidationError{Field: "age", Reason: "too old"}: monitoring.OutcomeValidation,
		&ml.EncodingError{Field: "region", Value: "mars"}:    monitoring.OutcomeEncoding,
		&ml.ModelUnavailableError{Path: "m.json"}:            monitoring.OutcomeModelUnavailable,
		context.Canceled: monitoring.OutcomeInternal,
	}
	for err, want := range cases {
		assert.Equal(t, want, outcomeOf(err), err.Error())
	}
}
