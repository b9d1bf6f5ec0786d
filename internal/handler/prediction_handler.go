package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/jinzhu/copier"
	"github.com/labstack/echo/v4"

	"diabetesrisk/internal/ml"
	"diabetesrisk/internal/service"
)

// DateLayout renders history timestamps at minute precision.
const DateLayout = "2006-01-02 15:04"

// PredictionHandler serves predictions, history and model metadata.
type PredictionHandler struct {
	svc service.PredictionService
}

// NewPredictionHandler creates a new prediction handler.
func NewPredictionHandler(svc service.PredictionService) *PredictionHandler {
	return &PredictionHandler{svc: svc}
}

// PredictRequest carries the eight measurements. JSON accepts numbers or
// numeric strings; form posts use the same keys.
type PredictRequest struct {
	Pregnancies json.Number `json:"pregnancies" form:"pregnancies" swaggertype:"number"`
	Glucose     json.Number `json:"glucose" form:"glucose" swaggertype:"number"`
	BP          json.Number `json:"bp" form:"bp" swaggertype:"number"`
	Skin        json.Number `json:"skin" form:"skin" swaggertype:"number"`
	Insulin     json.Number `json:"insulin" form:"insulin" swaggertype:"number"`
	BMI         json.Number `json:"bmi" form:"bmi" swaggertype:"number"`
	DPF         json.Number `json:"dpf" form:"dpf" swaggertype:"number"`
	Age         json.Number `json:"age" form:"age" swaggertype:"number"`
}

func (r PredictRequest) values() map[string]string {
	return map[string]string{
		"pregnancies": r.Pregnancies.String(),
		"glucose":     r.Glucose.String(),
		"bp":          r.BP.String(),
		"skin":        r.Skin.String(),
		"insulin":     r.Insulin.String(),
		"bmi":         r.BMI.String(),
		"dpf":         r.DPF.String(),
		"age":         r.Age.String(),
	}
}

// PredictResponse is the outcome of one prediction.
type PredictResponse struct {
	Result      string             `json:"result"`
	Probability float64            `json:"probability"`
	Features    map[string]float64 `json:"features"`
	Recorded    bool               `json:"recorded"`
	ModelRunID  string             `json:"model_run_id"`
	Date        string             `json:"date"`
}

// HistoryEntry is one row of a user's history.
type HistoryEntry struct {
	ID          uint    `json:"id"`
	Result      string  `json:"result"`
	Pregnancies float64 `json:"pregnancies"`
	Glucose     float64 `json:"glucose"`
	BP          float64 `json:"bp"`
	Skin        float64 `json:"skin"`
	Insulin     float64 `json:"insulin"`
	BMI         float64 `json:"bmi"`
	DPF         float64 `json:"dpf"`
	Age         float64 `json:"age"`
	Date        string  `json:"date"`
}

// HistoryResponse lists a user's predictions, newest first.
type HistoryResponse struct {
	Username string         `json:"username"`
	History  []HistoryEntry `json:"history"`
}

// ModelResponse describes the artifacts being served.
type ModelResponse struct {
	RunID     string    `json:"run_id"`
	TrainedAt time.Time `json:"trained_at"`
	Features  []string  `json:"features"`
	Accuracy  float64   `json:"accuracy"`
	TrainRows int       `json:"train_rows"`
	EvalRows  int       `json:"eval_rows"`
}

// Predict godoc
// @Summary Predict diabetes risk
// @Description Classifies the eight measurements and appends the result to the caller's history.
// @Tags predictions
// @Accept json,x-www-form-urlencoded
// @Produce json
// @Security BearerAuth
// @Param request body PredictRequest true "Measurements"
// @Success 200 {object} PredictResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /predictions [post]
func (h *PredictionHandler) Predict(c echo.Context) error {
	claims, err := currentUser(c)
	if err != nil {
		return err
	}

	var req PredictRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("measurements must be numeric")
	}

	res, err := h.svc.Predict(c.Request().Context(), claims.UserID, req.values())
	if err != nil {
		return httpError(c, err)
	}

	features := make(map[string]float64, ml.NumFeatures)
	for i, f := range ml.Features {
		features[f.Key] = res.Features[i]
	}
	return c.JSON(http.StatusOK, PredictResponse{
		Result:      res.Label,
		Probability: res.Probability,
		Features:    features,
		Recorded:    res.Recorded,
		ModelRunID:  res.RunID,
		Date:        res.PredictedAt.Format(DateLayout),
	})
}

// History godoc
// @Summary Prediction history
// @Tags predictions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} HistoryResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /history [get]
func (h *PredictionHandler) History(c echo.Context) error {
	claims, err := currentUser(c)
	if err != nil {
		return err
	}

	recs, err := h.svc.History(c.Request().Context(), claims.UserID)
	if err != nil {
		return httpError(c, err)
	}

	entries := make([]HistoryEntry, 0, len(recs))
	if err := copier.Copy(&entries, &recs); err != nil {
		return httpError(c, err)
	}
	for i := range entries {
		entries[i].Date = recs[i].PredictedAt.Format(DateLayout)
	}
	return c.JSON(http.StatusOK, HistoryResponse{Username: claims.Username, History: entries})
}

// Model godoc
// @Summary Served model
// @Description Metadata of the training run whose artifacts are loaded.
// @Tags predictions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} ModelResponse
// @Router /model [get]
func (h *PredictionHandler) Model(c echo.Context) error {
	meta := h.svc.ModelInfo()
	var resp ModelResponse
	if err := copier.Copy(&resp, &meta); err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}
