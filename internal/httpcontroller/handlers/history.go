package handlers

import (
	"net/http"
	"os"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/pneumodetect/internal/datastore"
	"github.com/tphakala/pneumodetect/internal/intake"
)

// Index renders the landing page.
func (h *Handlers) Index(c echo.Context) error {
	return h.render(c, http.StatusOK, "index", "PneumoDetect", nil)
}

// History lists the logged-in user's predictions, newest first.
func (h *Handlers) History(c echo.Context) error {
	records, err := h.DS.ListFor(CurrentUser(c).ID)
	if err != nil {
		return err
	}
	return h.render(c, http.StatusOK, "history", "Prediction History", records)
}

// DashboardStats summarises a user's history.
type DashboardStats struct {
	Total     int
	Pneumonia int
	Normal    int
	Recent    []datastore.Prediction
}

const dashboardRecent = 5

// Dashboard renders the logged-in user's landing page.
func (h *Handlers) Dashboard(c echo.Context) error {
	records, err := h.DS.ListFor(CurrentUser(c).ID)
	if err != nil {
		return err
	}
	stats := DashboardStats{Total: len(records)}
	for i := range records {
		switch records[i].Result {
		case datastore.ResultPneumonia:
			stats.Pneumonia++
		case datastore.ResultNormal:
			stats.Normal++
		}
	}
	stats.Recent = records[:min(len(records), dashboardRecent)]
	return h.render(c, http.StatusOK, "dashboard", "Dashboard", stats)
}

// record loads the prediction named by the :id parameter if the visitor
// may see it. Admins see every record, other users their own, anonymous
// visitors none. Every refusal is a plain 404.
func (h *Handlers) record(c echo.Context) (*datastore.Prediction, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 0)
	if err != nil || id == 0 {
		return nil, echo.ErrNotFound
	}
	user := CurrentUser(c)
	switch {
	case user == nil:
		return nil, echo.ErrNotFound
	case user.IsAdmin:
		return h.DS.Get(uint(id))
	default:
		return h.DS.GetOwned(uint(id), user.ID)
	}
}

// ViewResult renders a stored prediction.
func (h *Handlers) ViewResult(c echo.Context) error {
	rec, err := h.record(c)
	if err != nil {
		return err
	}
	return h.render(c, http.StatusOK, "view_result", "Prediction Result", rec)
}

// ResultImage serves the uploaded image of a stored prediction.
func (h *Handlers) ResultImage(c echo.Context) error {
	rec, err := h.record(c)
	if err != nil {
		return err
	}
	path, err := h.Uploads.Resolve(rec.Filename)
	if err != nil {
		return echo.ErrNotFound
	}
	return serveFile(c, path)
}

// ResultThumbnail serves the thumbnail of a stored prediction, falling back
// to the full image when no thumbnail exists.
func (h *Handlers) ResultThumbnail(c echo.Context) error {
	rec, err := h.record(c)
	if err != nil {
		return err
	}
	path, err := h.Uploads.ResolveThumbnail(intake.ThumbnailName(rec.Filename))
	if err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return serveFile(c, path)
		}
	}
	if path, err = h.Uploads.Resolve(rec.Filename); err != nil {
		return echo.ErrNotFound
	}
	return serveFile(c, path)
}

// ServeUpload serves an upload made earlier in the visitor's session.
func (h *Handlers) ServeUpload(c echo.Context) error {
	name := c.Param("name")
	if !h.Sessions.UploadedInSession(c, name) {
		return echo.ErrNotFound
	}
	path, err := h.Uploads.Resolve(name)
	if err != nil {
		return echo.ErrNotFound
	}
	return serveFile(c, path)
}

// serveFile sends a stored image. Uploads are medical images and must not
// end up in shared caches.
func serveFile(c echo.Context, path string) error {
	c.Response().Header().Set("Cache-Control", "private, max-age=3600")
	return c.File(path)
}

// Health reports liveness and the loaded model runtime.
func (h *Handlers) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
		"model":  h.Backend,
	})
}
