package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diabetesrisk/internal/artifact"
	"diabetesrisk/internal/auth"
	"diabetesrisk/internal/config"
	"diabetesrisk/internal/db"
	apperrors "diabetesrisk/internal/errors"
	"diabetesrisk/internal/handler"
	"diabetesrisk/internal/ml"
	"diabetesrisk/internal/ml/mltest"
	"diabetesrisk/internal/repository"
	"diabetesrisk/internal/service"
	"diabetesrisk/internal/training"
)

const examplePayload = `{"pregnancies":2,"glucose":130,"bp":70,"skin":25,"insulin":80,"bmi":28.5,"dpf":0.5,"age":"35"}`

type testServer struct {
	e     *echo.Echo
	pair  *artifact.Pair
	clock time.Time
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()

	opts := training.DefaultOptions()
	opts.DatasetPath = filepath.Join(dir, "diabetes.csv")
	opts.ArtifactDir = filepath.Join(dir, "model")
	opts.PlotPath = ""
	opts.Forest = mltest.SmallForest()
	require.NoError(t, os.WriteFile(opts.DatasetPath, []byte(mltest.CSV(mltest.Dataset(200, 11))), 0o644))
	_, err := training.Run(context.Background(), opts)
	require.NoError(t, err)

	pair, err := artifact.Load(opts.ArtifactDir)
	require.NoError(t, err)

	gdb, err := db.NewSQLite(filepath.Join(dir, "users.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb, false))

	cfg := &config.Config{JWTSecret: "test-secret", RecordingPolicy: config.RecordingAtomic}
	ts := &testServer{pair: pair, clock: time.Date(2024, 5, 4, 13, 37, 12, 0, time.UTC)}

	users := repository.NewUserRepository(gdb)
	jwtService := auth.NewJWTService(cfg.JWTSecret)
	authSvc := service.NewAuthService(users, jwtService, auth.NewTokenStore(nil))
	predSvc := service.NewPredictionService(pair, repository.NewHistoryRepository(gdb), nil,
		service.WithRecordingPolicy(cfg.RecordingPolicy),
		service.WithClock(func() time.Time { return ts.clock }),
	)

	ts.e = echo.New()
	Register(ts.e, cfg, Handlers{
		Auth:       handler.NewAuthHandler(authSvc),
		User:       handler.NewUserHandler(service.NewUserService(users, nil)),
		Prediction: handler.NewPredictionHandler(predSvc),
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, contentType, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) login(t *testing.T, username string) string {
	t.Helper()
	creds := `{"username":"` + username + `","password":"secret123"}`
	rec := ts.do(t, http.MethodPost, "/api/auth/register", echo.MIMEApplicationJSON, creds, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/auth/login", echo.MIMEApplicationJSON, creds, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp handler.AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)
	return resp.AccessToken
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/healthz", "", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestPredict_EndToEnd(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t, "alice")

	want, err := ts.pair.Predict(ml.FeatureVector{2, 130, 70, 25, 80, 28.5, 0.5, 35})
	require.NoError(t, err)

	rec := ts.do(t, http.MethodPost, "/api/predictions", echo.MIMEApplicationJSON, examplePayload, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[handler.PredictResponse](t, rec)
	assert.Contains(t, []string{ml.LabelDiabetic, ml.LabelNonDiabetic}, resp.Result)
	assert.Equal(t, want.Label, resp.Result)
	assert.True(t, resp.Recorded)
	assert.Equal(t, ts.pair.Metadata().RunID, resp.ModelRunID)
	assert.Equal(t, 28.5, resp.Features["bmi"])
	assert.Equal(t, "2024-05-04 13:37", resp.Date)

	rec = ts.do(t, http.MethodGet, "/api/history", "", "", token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	hist := decode[handler.HistoryResponse](t, rec)
	assert.Equal(t, "alice", hist.Username)
	require.Len(t, hist.History, 1)
	row := hist.History[0]
	assert.Equal(t, resp.Result, row.Result)
	assert.Equal(t, 2.0, row.Pregnancies)
	assert.Equal(t, 130.0, row.Glucose)
	assert.Equal(t, 70.0, row.BP)
	assert.Equal(t, 25.0, row.Skin)
	assert.Equal(t, 80.0, row.Insulin)
	assert.Equal(t, 28.5, row.BMI)
	assert.Equal(t, 0.5, row.DPF)
	assert.Equal(t, 35.0, row.Age)
	assert.Equal(t, "2024-05-04 13:37", row.Date)
}

func TestPredict_FormPost(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t, "alice")

	form := url.Values{}
	for k, v := range map[string]string{
		"pregnancies": "2", "glucose": "130", "bp": "70", "skin": "25",
		"insulin": "80", "bmi": "28.5", "dpf": "0.5", "age": "35",
	} {
		form.Set(k, v)
	}
	rec := ts.do(t, http.MethodPost, "/api/predictions", echo.MIMEApplicationForm, form.Encode(), token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[handler.PredictResponse](t, rec).Recorded)
}

func TestPredict_Validation(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t, "alice")

	tests := []struct {
		name        string
		contentType string
		body        string
		fields      []string
	}{
		{
			name:        "missing field",
			contentType: echo.MIMEApplicationJSON,
			body:        `{"pregnancies":2,"bp":70,"skin":25,"insulin":80,"bmi":28.5,"dpf":0.5,"age":35}`,
			fields:      []string{"glucose"},
		},
		{
			name:        "non numeric form value",
			contentType: echo.MIMEApplicationForm,
			body:        "pregnancies=2&glucose=high&bp=70&skin=25&insulin=80&bmi=28.5&dpf=0.5&age=35",
			fields:      []string{"glucose"},
		},
		{
			name:        "non numeric json string",
			contentType: echo.MIMEApplicationJSON,
			body:        `{"pregnancies":2,"glucose":"high","bp":70,"skin":25,"insulin":80,"bmi":28.5,"dpf":0.5,"age":35}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/predictions", tt.contentType, tt.body, token)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			body := decode[apperrors.ErrorResponse](t, rec)
			assert.Equal(t, "VALIDATION_ERROR", body.Code)
			if tt.fields != nil {
				assert.Equal(t, tt.fields, body.Fields)
			}
		})
	}

	rec := ts.do(t, http.MethodGet, "/api/history", "", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[handler.HistoryResponse](t, rec).History)
}

func TestHistory_NewestFirst(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t, "alice")

	base := ts.clock
	for i, glucose := range []string{"90", "150", "180"} {
		ts.clock = base.Add(time.Duration(i) * time.Hour)
		body := strings.Replace(examplePayload, `"glucose":130`, `"glucose":`+glucose, 1)
		rec := ts.do(t, http.MethodPost, "/api/predictions", echo.MIMEApplicationJSON, body, token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := ts.do(t, http.MethodGet, "/api/history", "", "", token)
	hist := decode[handler.HistoryResponse](t, rec)
	require.Len(t, hist.History, 3)
	assert.Equal(t, 180.0, hist.History[0].Glucose)
	assert.Equal(t, 150.0, hist.History[1].Glucose)
	assert.Equal(t, 90.0, hist.History[2].Glucose)

	other := ts.login(t, "bob")
	rec = ts.do(t, http.MethodGet, "/api/history", "", "", other)
	assert.Empty(t, decode[handler.HistoryResponse](t, rec).History)
}

func TestAuthFlow(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t, "alice")

	rec := ts.do(t, http.MethodPost, "/api/auth/register", echo.MIMEApplicationJSON, `{"username":"alice","password":"secret123"}`, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "USER_ALREADY_EXISTS", decode[apperrors.ErrorResponse](t, rec).Code)

	rec = ts.do(t, http.MethodPost, "/api/auth/register", echo.MIMEApplicationJSON, `{"username":"al","password":"x"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/auth/login", echo.MIMEApplicationJSON, `{"username":"alice","password":"wrong-password"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", decode[apperrors.ErrorResponse](t, rec).Code)

	rec = ts.do(t, http.MethodGet, "/api/me", "", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"username":"alice"`)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestSecuredRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t)
	for _, path := range []string{"/api/me", "/api/history", "/api/model"} {
		rec := ts.do(t, http.MethodGet, path, "", "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)

		rec = ts.do(t, http.MethodGet, path, "", "", "not-a-token")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
	rec := ts.do(t, http.MethodPost, "/api/predictions", echo.MIMEApplicationJSON, examplePayload, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefreshTokenRejectedAsBearer(t *testing.T) {
	ts := newTestServer(t)
	creds := `{"username":"alice","password":"secret123"}`
	rec := ts.do(t, http.MethodPost, "/api/auth/register", echo.MIMEApplicationJSON, creds, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = ts.do(t, http.MethodPost, "/api/auth/login", echo.MIMEApplicationJSON, creds, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	tokens := decode[handler.AuthResponse](t, rec)
	require.NotEmpty(t, tokens.RefreshToken)

	rec = ts.do(t, http.MethodPost, "/api/auth/logout", echo.MIMEApplicationJSON, `{"refresh_token":"`+tokens.RefreshToken+`"}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/predictions", echo.MIMEApplicationJSON, examplePayload, tokens.RefreshToken)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", decode[apperrors.ErrorResponse](t, rec).Code)
	for _, path := range []string{"/api/me", "/api/history", "/api/model"} {
		rec = ts.do(t, http.MethodGet, path, "", "", tokens.RefreshToken)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}

	rec = ts.do(t, http.MethodPost, "/api/auth/refresh", echo.MIMEApplicationJSON, `{"refresh_token":"`+tokens.AccessToken+`"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INVALID_REFRESH_TOKEN", decode[apperrors.ErrorResponse](t, rec).Code)

	rec = ts.do(t, http.MethodGet, "/api/history", "", "", tokens.AccessToken)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestModelInfo(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t, "alice")

	rec := ts.do(t, http.MethodGet, "/api/model", "", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[handler.ModelResponse](t, rec)
	assert.Equal(t, ts.pair.Metadata().RunID, resp.RunID)
	assert.Equal(t, ml.FeatureColumns(), resp.Features)
	assert.Equal(t, 160, resp.TrainRows)
	assert.Equal(t, 40, resp.EvalRows)
}
