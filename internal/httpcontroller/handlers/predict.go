package handlers

import (
	"mime/multipart"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/pneumodetect/internal/classifier"
	"github.com/tphakala/pneumodetect/internal/errors"
	"github.com/tphakala/pneumodetect/internal/intake"
	"github.com/tphakala/pneumodetect/internal/logger"
	"github.com/tphakala/pneumodetect/internal/observability/metrics"
	"github.com/tphakala/pneumodetect/internal/security"
)

// Outcome is a classified and possibly persisted upload.
type Outcome struct {
	Filename  string // stored name
	Result    classifier.Result
	Thumbnail bool
	RecordID  uint // 0 when not persisted
}

// ImageURL returns where the uploaded image can be fetched by the visitor
// who made it.
func (o *Outcome) ImageURL() string {
	return "/uploads/" + o.Filename
}

// rejection describes a refused upload in user terms.
type rejection struct {
	message string
	reason  string
	code    int
}

// uploadRejection maps intake and decode failures to a flash message, a
// metrics reason and an API status. ok is false for server side errors.
func uploadRejection(err error) (rejection, bool) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, intake.ErrNoFileProvided):
		return rejection{"No file part", metrics.RejectNoFile, http.StatusBadRequest}, true
	case errors.Is(err, intake.ErrEmptyFilename):
		return rejection{"No selected file", metrics.RejectEmptyFilename, http.StatusBadRequest}, true
	case errors.Is(err, intake.ErrUnsupportedExtension):
		return rejection{"Invalid file type", metrics.RejectExtension, http.StatusBadRequest}, true
	case errors.Is(err, intake.ErrFileTooLarge),
		errors.Is(err, echo.ErrStatusRequestEntityTooLarge),
		errors.As(err, &tooLarge):
		return rejection{"File too large", metrics.RejectTooLarge, http.StatusRequestEntityTooLarge}, true
	case errors.Is(err, intake.ErrInsufficientSpace):
		return rejection{"Server storage is full, please try again later", metrics.RejectDiskFull, http.StatusInsufficientStorage}, true
	case errors.Is(err, classifier.ErrCorruptImage):
		return rejection{"The uploaded file is not a readable image", metrics.RejectCorruptImage, http.StatusBadRequest}, true
	}
	return rejection{}, false
}

// formFile returns the "file" part of a multipart request. A missing part
// yields a nil header; a file input submitted with nothing selected yields
// a header with an empty filename.
func formFile(c echo.Context) (*multipart.FileHeader, error) {
	fh, err := c.FormFile("file")
	if err == nil {
		return fh, nil
	}
	var tooLarge *http.MaxBytesError
	if errors.Is(err, echo.ErrStatusRequestEntityTooLarge) || errors.As(err, &tooLarge) {
		return nil, err
	}
	// browsers send an empty filename for an empty file input, which
	// multipart parsing files under plain values
	if form := c.Request().MultipartForm; form != nil {
		if _, ok := form.Value["file"]; ok {
			return &multipart.FileHeader{}, nil
		}
	}
	return nil, nil
}

// PredictForm renders the upload page.
func (h *Handlers) PredictForm(c echo.Context) error {
	return h.render(c, http.StatusOK, "predict", "Upload X-ray", map[string]any{
		"Extensions": h.Settings.Intake.AllowedExtensions,
	})
}

// Predict classifies an uploaded X-ray and renders the result. Rejected
// uploads are reported with a flash on the upload page.
func (h *Handlers) Predict(c echo.Context) error {
	outcome, err := h.accept(c, formFile)
	if err != nil {
		if r, ok := uploadRejection(err); ok {
			h.Metrics.Prediction.RecordUploadRejected(r.reason)
			return h.flashRedirect(c, security.FlashDanger, r.message, "/predict")
		}
		return err
	}
	return h.render(c, http.StatusOK, "result", "Prediction Result", outcome)
}

// accept stores the upload produced by source, classifies it, persists the
// outcome for logged-in users and remembers the upload in the session.
func (h *Handlers) accept(c echo.Context, source func(echo.Context) (*multipart.FileHeader, error)) (*Outcome, error) {
	fh, err := source(c)
	if err != nil {
		return nil, err
	}
	stored, err := h.Uploads.Accept(fh)
	if err != nil {
		return nil, err
	}
	return h.classify(c, stored)
}

func (h *Handlers) classify(c echo.Context, stored intake.StoredFile) (*Outcome, error) {
	log := h.log.WithContext(c.Request().Context())

	start := time.Now()
	res, err := h.Classifier.Classify(stored.Path)
	if err != nil {
		h.discard(stored.Name)
		if !errors.Is(err, classifier.ErrCorruptImage) {
			h.Metrics.Prediction.RecordPredictionError(metrics.ErrorInference)
		}
		return nil, err
	}
	h.Metrics.Prediction.RecordPrediction(string(res.Label), time.Since(start).Seconds())

	outcome := &Outcome{Filename: stored.Name, Result: res}
	thumb, err := h.Uploads.Thumbnail(stored.Name)
	if err != nil {
		log.Warn("thumbnail generation failed", logger.String("name", stored.Name), logger.Error(err))
	}
	outcome.Thumbnail = thumb != ""

	if user := CurrentUser(c); user != nil {
		id, err := h.DS.Record(&user.ID, stored.Name, string(res.Label), res.Confidence)
		if err != nil {
			h.Metrics.Prediction.RecordPredictionError(metrics.ErrorStorage)
			return nil, err
		}
		outcome.RecordID = id
	}

	if err := h.Sessions.TrackUpload(c, stored.Name); err != nil {
		log.Warn("failed to remember upload in session", logger.Error(err))
	}

	log.Info("prediction completed",
		logger.String("label", string(res.Label)),
		logger.Float64("confidence", res.Confidence),
		logger.Uint("record_id", outcome.RecordID))
	return outcome, nil
}

func (h *Handlers) discard(name string) {
	if err := h.Uploads.Remove(name); err != nil {
		h.log.Warn("failed to remove upload", logger.String("name", name), logger.Error(err))
	}
}
