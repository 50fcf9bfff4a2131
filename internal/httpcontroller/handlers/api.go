package handlers

import (
	"mime"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/pneumodetect/internal/datastore"
)

// PredictionResponse is the JSON body returned by POST /api/v1/predict.
type PredictionResponse struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Score      float64 `json:"score"`
	Filename   string  `json:"filename"`
	ID         *uint   `json:"id,omitempty"`
}

// raw image bodies and the name they are stored under when the caller
// gives none
var rawImageTypes = map[string]string{
	"image/png":  "upload.png",
	"image/jpeg": "upload.jpg",
}

// APIPredict classifies a multipart "file" part or a raw PNG or JPEG body.
// For raw bodies the original name may be passed as ?filename=.
func (h *Handlers) APIPredict(c echo.Context) error {
	mediaType, _, _ := mime.ParseMediaType(c.Request().Header.Get(echo.HeaderContentType))

	var (
		outcome *Outcome
		err     error
	)
	if mediaType == echo.MIMEMultipartForm {
		outcome, err = h.accept(c, formFile)
	} else {
		outcome, err = h.acceptRaw(c, mediaType)
	}
	if err != nil {
		if r, ok := uploadRejection(err); ok {
			h.Metrics.Prediction.RecordUploadRejected(r.reason)
			return &HandlerError{Err: err, Message: r.message, Code: r.code}
		}
		return err
	}

	resp := PredictionResponse{
		Label:      string(outcome.Result.Label),
		Confidence: outcome.Result.Confidence,
		Score:      outcome.Result.Score,
		Filename:   outcome.Filename,
	}
	if outcome.RecordID != 0 {
		resp.ID = &outcome.RecordID
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handlers) acceptRaw(c echo.Context, mediaType string) (*Outcome, error) {
	fallback, ok := rawImageTypes[mediaType]
	if !ok {
		return nil, &HandlerError{
			Message: "expected multipart/form-data, image/png or image/jpeg",
			Code:    http.StatusUnsupportedMediaType,
		}
	}
	name := c.QueryParam("filename")
	if name == "" {
		name = fallback
	}
	req := c.Request()
	stored, err := h.Uploads.AcceptReader(name, req.ContentLength, req.Body)
	if err != nil {
		return nil, err
	}
	return h.classify(c, stored)
}

// APIHistory returns the caller's predictions, newest first.
func (h *Handlers) APIHistory(c echo.Context) error {
	records, err := h.DS.ListFor(CurrentUser(c).ID)
	if err != nil {
		return err
	}
	out := make([]datastore.PredictionJSON, 0, len(records))
	for i := range records {
		out = append(out, records[i].JSON())
	}
	return c.JSON(http.StatusOK, out)
}

// APIHistoryItem returns one prediction under the same visibility rule as
// the result page.
func (h *Handlers) APIHistoryItem(c echo.Context) error {
	rec, err := h.record(c)
	if err != nil {
		if StatusFor(err) == http.StatusNotFound {
			return &HandlerError{Err: err, Message: "prediction not found", Code: http.StatusNotFound}
		}
		return err
	}
	return c.JSON(http.StatusOK, rec.JSON())
}
