package http

import (
	"context"
	"errors"
	"fmt"
	"image/png"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/GriffinCanCode/docviewer/internal/classifier"
	"github.com/GriffinCanCode/docviewer/internal/render"
	"github.com/GriffinCanCode/docviewer/internal/shared/id"
	"github.com/GriffinCanCode/docviewer/internal/viewer"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// loadBody names a source. Wait makes the call return once the load has
// settled instead of right away.
type loadBody struct {
	URL   string `json:"url"`
	Proxy string `json:"proxy"`
	Kind  string `json:"kind"`
	Title string `json:"title"`
	Wait  bool   `json:"wait"`
}

func (b loadBody) request() viewer.LoadRequest {
	return viewer.LoadRequest{
		URL:   b.URL,
		Proxy: b.Proxy,
		Kind:  classifier.ParseKind(b.Kind),
		Title: b.Title,
	}
}

type createBody struct {
	loadBody
	ViewMode string  `json:"view_mode"`
	Zoom     int     `json:"zoom"`
	DPR      float64 `json:"dpr"`
}

type livenessView struct {
	Running      bool      `json:"running"`
	Stalls       int       `json:"stalls"`
	LastActivity time.Time `json:"last_activity,omitempty"`
}

type viewerView struct {
	ID       string       `json:"id"`
	Created  time.Time    `json:"created"`
	DPR      float64      `json:"dpr"`
	State    viewer.State `json:"state"`
	Liveness livenessView `json:"liveness"`
}

func viewOf(v *viewer.Viewer) viewerView {
	mon := v.Liveness()
	return viewerView{
		ID:      v.ID().String(),
		Created: v.Created(),
		DPR:     v.DevicePixelRatio(),
		State:   v.State(),
		Liveness: livenessView{
			Running:      mon.Running(),
			Stalls:       mon.Stalls(),
			LastActivity: mon.LastActivity(),
		},
	}
}

// viewerFor looks up the :id viewer, answering the request itself when
// there is none
func (h *Handlers) viewerFor(c *gin.Context) (*viewer.Viewer, bool) {
	viewerID := c.Param("id")
	if !id.IsValidPrefixed(viewerID, id.ViewerPrefix) {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid viewer id %q", viewerID)})
		return nil, false
	}
	v, ok := h.viewers.Get(viewerID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": viewer.ErrNotFound.Error(), "viewer_id": viewerID})
		return nil, false
	}
	return v, true
}

// load starts req on v. Without wait it runs detached from the request.
func (h *Handlers) load(c *gin.Context, v *viewer.Viewer, req viewer.LoadRequest, wait bool) {
	if wait {
		if err := v.Load(context.WithoutCancel(c.Request.Context()), req); err != nil {
			h.log.Debug("load settled with error", zap.String("viewer", v.ID().String()), zap.Error(err))
		}
		return
	}
	go func() {
		_ = v.Load(context.Background(), req)
	}()
}

// CreateViewer creates a viewer, loading a source when one is given
func (h *Handlers) CreateViewer(c *gin.Context) {
	var body createBody
	if err := bindJSON(c, &body); err != nil {
		badRequest(c, err)
		return
	}

	var opts []viewer.Option
	if body.ViewMode != "" {
		opts = append(opts, viewer.WithViewMode(viewer.ParseViewMode(body.ViewMode)))
	}
	if body.Zoom > 0 {
		opts = append(opts, viewer.WithInitialZoom(body.Zoom))
	}
	if body.DPR > 0 {
		opts = append(opts, viewer.WithDevicePixelRatio(body.DPR))
	}
	v := h.viewers.Create(opts...)

	status := http.StatusCreated
	if body.URL != "" {
		h.load(c, v, body.request(), body.Wait)
		if !body.Wait {
			status = http.StatusAccepted
		}
	}
	c.JSON(status, viewOf(v))
}

// ListViewers lists every viewer
func (h *Handlers) ListViewers(c *gin.Context) {
	viewers := h.viewers.List()
	views := make([]viewerView, 0, len(viewers))
	for _, v := range viewers {
		views = append(views, viewOf(v))
	}
	c.JSON(http.StatusOK, gin.H{
		"viewers": views,
		"stats":   h.viewers.Stats(),
	})
}

// GetViewer returns one viewer
func (h *Handlers) GetViewer(c *gin.Context) {
	v, ok := h.viewerFor(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, viewOf(v))
}

// LoadViewer points a viewer at a new source
func (h *Handlers) LoadViewer(c *gin.Context) {
	v, ok := h.viewerFor(c)
	if !ok {
		return
	}
	var body loadBody
	if err := bindJSON(c, &body); err != nil {
		badRequest(c, err)
		return
	}

	h.load(c, v, body.request(), body.Wait)
	status := http.StatusOK
	if !body.Wait {
		status = http.StatusAccepted
	}
	c.JSON(status, viewOf(v))
}

// RetryViewer reloads the current source. ?wait=true blocks until the
// load settles.
func (h *Handlers) RetryViewer(c *gin.Context) {
	v, ok := h.viewerFor(c)
	if !ok {
		return
	}
	if v.Request().URL == "" {
		c.JSON(http.StatusConflict, gin.H{"error": viewer.ErrNoSource.Error()})
		return
	}

	wait := c.Query("wait") == "true"
	h.load(c, v, v.Request(), wait)
	status := http.StatusOK
	if !wait {
		status = http.StatusAccepted
	}
	c.JSON(status, viewOf(v))
}

// Zoom adjusts the zoom: {"action": "in"|"out"|"reset"|"set", "value": n}
func (h *Handlers) Zoom(c *gin.Context) {
	h.control(c, func(v *viewer.Viewer, body controlBody) error {
		switch body.Action {
		case "in":
			v.ZoomIn()
		case "out":
			v.ZoomOut()
		case "reset":
			v.ResetZoom()
		case "set":
			v.SetZoom(body.Value)
		default:
			return fmt.Errorf("unknown zoom action %q", body.Action)
		}
		return nil
	})
}

// Rotate turns the document: {"direction": "left"|"right"}
func (h *Handlers) Rotate(c *gin.Context) {
	h.control(c, func(v *viewer.Viewer, body controlBody) error {
		switch body.Direction {
		case "right", "":
			v.RotateRight()
		case "left":
			v.RotateLeft()
		default:
			return fmt.Errorf("unknown rotation direction %q", body.Direction)
		}
		return nil
	})
}

// Page navigates: {"action": "next"|"prev"|"goto", "page": n}
func (h *Handlers) Page(c *gin.Context) {
	h.control(c, func(v *viewer.Viewer, body controlBody) error {
		switch body.Action {
		case "next":
			v.NextPage()
		case "prev":
			v.PrevPage()
		case "goto":
			v.GoToPage(body.Page)
		default:
			return fmt.Errorf("unknown page action %q", body.Action)
		}
		return nil
	})
}

// Mode sets the view mode: {"mode": "single"|"continuous"|"toggle"}
func (h *Handlers) Mode(c *gin.Context) {
	h.control(c, func(v *viewer.Viewer, body controlBody) error {
		switch body.Mode {
		case "toggle":
			v.ToggleViewMode()
		case string(viewer.ModeSingle), string(viewer.ModeContinuous):
			v.SetViewMode(viewer.ViewMode(body.Mode))
		default:
			return fmt.Errorf("unknown view mode %q", body.Mode)
		}
		return nil
	})
}

// Resize applies a device pixel ratio: {"dpr": 2}
func (h *Handlers) Resize(c *gin.Context) {
	h.control(c, func(v *viewer.Viewer, body controlBody) error {
		if body.DPR <= 0 {
			return errors.New("dpr must be positive")
		}
		v.Resize(body.DPR)
		return nil
	})
}

type controlBody struct {
	Action    string  `json:"action"`
	Direction string  `json:"direction"`
	Mode      string  `json:"mode"`
	Value     int     `json:"value"`
	Page      int     `json:"page"`
	DPR       float64 `json:"dpr"`
}

func (h *Handlers) control(c *gin.Context, apply func(*viewer.Viewer, controlBody) error) {
	v, ok := h.viewerFor(c)
	if !ok {
		return
	}
	if v.Closed() {
		c.JSON(statusFor(viewer.ErrClosed), gin.H{"error": viewer.ErrClosed.Error()})
		return
	}
	var body controlBody
	if err := bindJSON(c, &body); err != nil {
		badRequest(c, err)
		return
	}
	if err := apply(v, body); err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(v))
}

// PageImage serves a rendered page as PNG. ?max=n scales it down so the
// longer side is at most n pixels.
func (h *Handlers) PageImage(c *gin.Context) {
	v, ok := h.viewerFor(c)
	if !ok {
		return
	}
	page, err := strconv.Atoi(strings.TrimSuffix(c.Param("page"), ".png"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid page %q", c.Param("page"))})
		return
	}
	maxSide := 0
	if raw := c.Query("max"); raw != "" {
		if maxSide, err = strconv.Atoi(raw); err != nil || maxSide < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid max %q", raw)})
			return
		}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), v.Config().LivenessThreshold)
	defer cancel()

	img, err := v.PageThumbnail(ctx, page, maxSide)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "code": viewer.ErrorCode(err)})
		return
	}

	c.Header("Content-Type", "image/png")
	c.Header("Cache-Control", "no-store")
	c.Status(http.StatusOK)
	if err := png.Encode(c.Writer, img); err != nil {
		h.log.Warn("page encode failed", zap.String("viewer", v.ID().String()), zap.Int("page", page), zap.Error(err))
	}
}

// DeleteViewer closes a viewer
func (h *Handlers) DeleteViewer(c *gin.Context) {
	viewerID := c.Param("id")
	if !h.viewers.Close(viewerID) {
		c.JSON(http.StatusNotFound, gin.H{"error": viewer.ErrNotFound.Error(), "viewer_id": viewerID})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"viewer_id": viewerID,
	})
}

// statusFor maps pipeline errors onto HTTP statuses
func statusFor(err error) int {
	switch {
	case errors.Is(err, viewer.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, render.ErrPageRange):
		return http.StatusNotFound
	case errors.Is(err, viewer.ErrClosed):
		return http.StatusGone
	case errors.Is(err, viewer.ErrNoDocument),
		errors.Is(err, viewer.ErrSuperseded),
		errors.Is(err, render.ErrSessionClosed),
		errors.Is(err, render.ErrCancelled):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
