package composer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	_ "image/gif"
)

const (
	pngContentType   = "image/png"
	mjpegBoundary    = "mvcframe"
	mjpegContentType = "multipart/x-mixed-replace; boundary=" + mjpegBoundary
)

// DefaultStreamFPS is the MJPEG tick rate used when none is configured.
const DefaultStreamFPS = 15

// Handler exposes the compositor over HTTP using go-chi: camera and sensor
// ingest, on-demand PNG frames, an MJPEG stream, and layout switching.
// Update counters live in the Compositor so websocket and HTTP ingest are
// counted the same way.
type Handler struct {
	comp      *Compositor
	log       *slog.Logger
	streamFPS int
	upgrader  websocket.Upgrader
}

// NewHandler returns a Handler for the given Compositor. streamFPS bounds the
// MJPEG tick rate; zero or negative selects DefaultStreamFPS.
func NewHandler(comp *Compositor, log *slog.Logger, streamFPS int) *Handler {
	if streamFPS <= 0 {
		streamFPS = DefaultStreamFPS
	}
	return &Handler{
		comp:      comp,
		log:       log,
		streamFPS: streamFPS,
		upgrader:  websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
	}
}

// Routes mounts all compositor endpoints on the given router.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/cameras/{camera}", func(r chi.Router) {
		r.Post("/image", h.UpdateCameraImage)
		r.Post("/state", h.SetCameraState)
	})
	r.Post("/sensors", h.UpdateSensors)
	r.Get("/sensors/ws", h.SensorSocket)
	r.Get("/frames/{output}.png", h.GetFrame)
	r.Get("/stream.mjpeg", h.StreamMJPEG)
	r.Put("/layout", h.SetLayout)
	r.Get("/layout", h.GetLayout)
}

// UpdateCameraImage handles POST /cameras/{camera}/image.
// The body is a PNG or JPEG image; ?active=false marks the camera inactive.
func (h *Handler) UpdateCameraImage(w http.ResponseWriter, r *http.Request) {
	camera := chi.URLParam(r, "camera")
	if camera == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	active := true
	if s := r.URL.Query().Get("active"); s != "" {
		v, err := strconv.ParseBool(s)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		active = v
	}

	img, format, err := image.Decode(r.Body)
	if err != nil {
		h.log.Debug("invalid camera image", slog.String("camera", camera), slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	h.comp.UpdateCameraImage(camera, img, active)
	h.log.Debug("camera image updated",
		slog.String("camera", camera),
		slog.String("format", format),
		slog.Bool("active", active))
	w.WriteHeader(http.StatusNoContent)
}

// SetCameraState handles POST /cameras/{camera}/state.
// Body: { "active": false }.
func (h *Handler) SetCameraState(w http.ResponseWriter, r *http.Request) {
	camera := chi.URLParam(r, "camera")
	if camera == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var body struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	h.comp.SetCameraActive(camera, body.Active)
	w.WriteHeader(http.StatusNoContent)
}

// UpdateSensors handles POST /sensors. The body is a flat JSON object of
// number, boolean, or string values; only the supplied keys are replaced.
func (h *Handler) UpdateSensors(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	h.comp.UpdateSensorData(valuesFromJSON(body))
	w.WriteHeader(http.StatusNoContent)
}

// SensorSocket handles GET /sensors/ws: a websocket feed carrying the same
// flat JSON sensor objects as POST /sensors, one merge per message. Intended
// for low-latency teleoperation links that push many updates per second.
func (h *Handler) SensorSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	connID := uuid.NewString()
	h.log.Info("sensor socket connected", slog.String("conn_id", connID))

	for {
		var body map[string]any
		if err := conn.ReadJSON(&body); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug("sensor socket read failed",
					slog.String("conn_id", connID),
					slog.String("error", err.Error()))
			}
			break
		}
		h.comp.UpdateSensorData(valuesFromJSON(body))
	}

	h.log.Info("sensor socket disconnected", slog.String("conn_id", connID))
}

// GetFrame handles GET /frames/{output}.png: composes the named output on
// demand and returns it as PNG.
func (h *Handler) GetFrame(w http.ResponseWriter, r *http.Request) {
	output := chi.URLParam(r, "output")
	if output == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	frame, err := h.comp.GenerateOutput(output)
	if err != nil {
		if errors.Is(err, ErrUnknownOutput) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.log.Error("compose failed", slog.String("output", output), slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", pngContentType)
	w.WriteHeader(http.StatusOK)
	if err := png.Encode(w, frame.Image); err != nil {
		h.log.Debug("png encode failed", slog.String("error", err.Error()))
	}
}

// StreamMJPEG handles GET /stream.mjpeg?output=NAME: a multipart JPEG stream
// composed at the configured tick rate until the client disconnects. With no
// output parameter the first configured output is streamed.
func (h *Handler) StreamMJPEG(w http.ResponseWriter, r *http.Request) {
	output := r.URL.Query().Get("output")
	if output == "" {
		names := h.comp.OutputNames()
		if len(names) == 0 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		output = names[0]
	}
	if _, err := h.comp.GenerateOutput(output); err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	connID := uuid.NewString()
	h.log.Info("mjpeg stream started",
		slog.String("conn_id", connID),
		slog.String("output", output),
		slog.Int("fps", h.streamFPS))

	w.Header().Set("Content-Type", mjpegContentType)
	w.WriteHeader(http.StatusOK)

	ticker := time.NewTicker(time.Second / time.Duration(h.streamFPS))
	defer ticker.Stop()

	var buf bytes.Buffer
	for {
		select {
		case <-r.Context().Done():
			h.log.Info("mjpeg stream closed", slog.String("conn_id", connID))
			return
		case <-ticker.C:
		}

		frame, err := h.comp.GenerateOutput(output)
		if err != nil {
			return
		}

		buf.Reset()
		if err := jpeg.Encode(&buf, frame.Image, &jpeg.Options{Quality: 80}); err != nil {
			continue
		}

		if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", mjpegBoundary, buf.Len()); err != nil {
			return
		}
		if _, err := w.Write(buf.Bytes()); err != nil {
			return
		}
		if _, err := fmt.Fprint(w, "\r\n"); err != nil {
			return
		}
		flusher.Flush()
	}
}

// SetLayout handles PUT /layout. Body: { "active": "<layout name>" }.
func (h *Handler) SetLayout(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Active string `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Active == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := h.comp.SetActiveLayout(body.Active); err != nil {
		if errors.Is(err, ErrUnknownLayout) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetLayout handles GET /layout, reporting the active layout name.
func (h *Handler) GetLayout(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"active": h.comp.ActiveLayout()})
}

// valuesFromJSON converts a decoded flat JSON object into sensor Values.
func valuesFromJSON(body map[string]any) map[string]Value {
	out := make(map[string]Value, len(body))
	for name, v := range body {
		out[name] = ValueOf(v)
	}
	return out
}
