package composer

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"multiview-composer/internal/platform/metrics"
)

var (
	// ErrUnknownLayout is returned when selecting a layout name that the
	// configuration does not define.
	ErrUnknownLayout = errors.New("unknown layout")

	// ErrUnknownOutput is returned when composing an output name that the
	// configuration does not define.
	ErrUnknownOutput = errors.New("unknown output")
)

// ComposedFrame is one finished canvas: the raster plus the layout identity
// and version it was built from. It is rebuilt every tick and never mutated
// after being handed to the caller.
type ComposedFrame struct {
	Output        string
	Layout        string
	LayoutVersion uint64
	Image         *image.RGBA
}

// regionKey identifies one cached region bitmap.
type regionKey struct {
	output string
	camera string
}

// regionEntry is a cached scaled region bitmap plus everything that must be
// unchanged for it to be served again: the camera's sequence number, the
// layout it was resolved from, and the resolved region itself (which also
// captures the canvas size).
type regionEntry struct {
	seq    uint64
	layout *Layout
	region Region
	bitmap *image.RGBA
}

// overlayEntry caches one overlay's rendered text and color for a sensor
// state version.
type overlayEntry struct {
	version uint64
	result  RenderedOverlay
}

// Compositor orchestrates frame production: it tracks camera images and
// sensor variables pushed by producers and, on each GenerateFrame call,
// composes one canvas per configured output. The configuration is read-only
// after construction; the active layout is swapped atomically.
type Compositor struct {
	cfg     *Config
	store   *CameraStore
	sensors *SensorState
	log     *slog.Logger
	metrics *metrics.Metrics
	workers int

	layouts       map[string]*Layout
	active        atomic.Pointer[Layout]
	layoutVersion atomic.Uint64

	mu           sync.Mutex
	regionCache  map[regionKey]*regionEntry
	overlayCache map[string]*overlayEntry
}

// NewCompositor builds the layout trees from the configuration and returns a
// ready compositor. workers bounds intra-tick parallelism across regions;
// zero or negative means one worker per CPU. Metrics may be nil to disable
// metric recording (e.g. in tests).
func NewCompositor(cfg *Config, workers int, log *slog.Logger, m *metrics.Metrics) (*Compositor, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	layouts := make(map[string]*Layout, len(cfg.Layouts))
	for name, node := range cfg.Layouts {
		l, err := BuildLayout(name, node)
		if err != nil {
			return nil, err
		}
		layouts[name] = l
	}

	c := &Compositor{
		cfg:          cfg,
		store:        NewCameraStore(),
		sensors:      NewSensorState(),
		log:          log,
		metrics:      m,
		workers:      workers,
		layouts:      layouts,
		regionCache:  make(map[regionKey]*regionEntry),
		overlayCache: make(map[string]*overlayEntry),
	}
	c.active.Store(layouts[cfg.ActiveLayout])
	c.layoutVersion.Store(1)

	log.Info("compositor ready",
		slog.Int("layouts", len(layouts)),
		slog.Int("overlays", len(cfg.Overlays)),
		slog.Int("outputs", len(cfg.Outputs)),
		slog.String("active_layout", cfg.ActiveLayout),
		slog.Int("workers", workers),
	)
	return c, nil
}

// UpdateCameraImage stores a camera's latest image and liveness flag, applying
// the camera's configured ingest rotation. Safe to call concurrently with
// frame generation and with updates to other cameras.
func (c *Compositor) UpdateCameraImage(id string, img image.Image, active bool) {
	if def, ok := c.cfg.Cameras[id]; ok && def.Rotate != 0 && img != nil {
		img = rotateImage(img, def.Rotate)
	}
	c.store.Update(id, img, active)
	if c.metrics != nil {
		c.metrics.IncCameraUpdates()
	}
}

// SetCameraActive flips a camera's liveness flag without replacing its image.
func (c *Compositor) SetCameraActive(id string, active bool) {
	c.store.SetActive(id, active)
}

// UpdateSensorData merges the supplied sensor variables into the variable
// set. Only the named keys are replaced.
func (c *Compositor) UpdateSensorData(values map[string]Value) {
	c.sensors.Merge(values)
	if c.metrics != nil {
		c.metrics.IncSensorUpdates()
	}
}

// SetActiveLayout atomically swaps the active layout. Frame builds already in
// flight finish against the layout they started with.
func (c *Compositor) SetActiveLayout(name string) error {
	l, ok := c.layouts[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownLayout, name)
	}
	c.active.Store(l)
	c.layoutVersion.Add(1)
	c.log.Info("active layout changed", slog.String("layout", name))
	return nil
}

// ActiveLayout returns the name of the currently selected layout.
func (c *Compositor) ActiveLayout() string {
	return c.active.Load().Name()
}

// OutputNames returns the configured output names in declaration order.
func (c *Compositor) OutputNames() []string {
	names := make([]string, len(c.cfg.Outputs))
	for i, out := range c.cfg.Outputs {
		names[i] = out.Name
	}
	return names
}

// ActiveCameraCount reports how many cameras are currently flagged active.
func (c *Compositor) ActiveCameraCount() int {
	return c.store.ActiveCount()
}

// GenerateFrame composes one frame per configured output and returns them in
// declaration order. It never fails: missing cameras render as placeholders
// and unresolved variables render visibly.
func (c *Compositor) GenerateFrame() []ComposedFrame {
	start := time.Now()
	vars, sensorVersion := c.sensors.Snapshot()

	frames := make([]ComposedFrame, 0, len(c.cfg.Outputs))
	for _, out := range c.cfg.Outputs {
		frames = append(frames, c.composeOutput(out, vars, sensorVersion))
	}

	if c.metrics != nil {
		c.metrics.IncFramesComposed()
		c.metrics.ObserveComposeDuration(time.Since(start))
	}
	return frames
}

// GenerateOutput composes a single named output.
func (c *Compositor) GenerateOutput(name string) (ComposedFrame, error) {
	for _, out := range c.cfg.Outputs {
		if out.Name != name {
			continue
		}
		vars, sensorVersion := c.sensors.Snapshot()
		return c.composeOutput(out, vars, sensorVersion), nil
	}
	return ComposedFrame{}, fmt.Errorf("%w: %q", ErrUnknownOutput, name)
}

func (c *Compositor) outputLayout(out OutputConfig) *Layout {
	if out.Layout != "" {
		return c.layouts[out.Layout]
	}
	return c.active.Load()
}

func (c *Compositor) composeOutput(out OutputConfig, vars map[string]Value, sensorVersion uint64) ComposedFrame {
	layout := c.outputLayout(out)
	regions := layout.Resolve(out.Width, out.Height)
	snaps := c.store.Snapshot(layout.CameraIDs())

	canvas := image.NewRGBA(image.Rect(0, 0, out.Width, out.Height))

	// Regions are disjoint pixel ranges of the canvas, so workers never
	// touch overlapping memory and no locking is needed on the canvas.
	var g errgroup.Group
	g.SetLimit(c.workers)
	for camera, rg := range regions {
		camera, rg := camera, rg
		g.Go(func() error {
			c.fillRegion(canvas, out.Name, layout, camera, rg, snaps[camera])
			return nil
		})
	}
	_ = g.Wait()

	for camera, rg := range regions {
		if c.cfg.Cameras[camera].Centermark {
			drawCentermark(canvas, rg, c.cfg.Centermark)
		}
		drawBorder(canvas, rg, c.cfg.Border)
	}

	if out.Overlays() {
		c.applyOverlays(canvas, regions, vars, sensorVersion)
	}

	return ComposedFrame{
		Output:        out.Name,
		Layout:        layout.Name(),
		LayoutVersion: c.layoutVersion.Load(),
		Image:         canvas,
	}
}

// fillRegion blits one camera's region, reusing the cached scaled bitmap when
// the camera's sequence number, the layout, and the resolved region are all
// unchanged since the previous tick.
func (c *Compositor) fillRegion(canvas *image.RGBA, output string, layout *Layout, camera string, rg Region, snap CameraSnapshot) {
	if rg.Empty() {
		return
	}

	key := regionKey{output: output, camera: camera}

	c.mu.Lock()
	entry, ok := c.regionCache[key]
	if ok && entry.seq == snap.Seq && entry.layout == layout && entry.region == rg {
		bitmap := entry.bitmap
		c.mu.Unlock()
		if c.metrics != nil {
			c.metrics.IncRegionCacheHits()
		}
		blitRegion(canvas, rg, bitmap)
		return
	}
	c.mu.Unlock()

	var src image.Image
	if snap.Present && snap.Active {
		src = snap.Image
	}
	bitmap := renderRegionBitmap(src, rg.Width, rg.Height)

	c.mu.Lock()
	c.regionCache[key] = &regionEntry{seq: snap.Seq, layout: layout, region: rg, bitmap: bitmap}
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.IncRegionCacheMisses()
	}
	blitRegion(canvas, rg, bitmap)
}

// applyOverlays stamps each configured overlay onto the regions of its target
// cameras, stacking boxes from the region's top edge in declaration order.
// Overlays targeting cameras absent from this layout are skipped.
func (c *Compositor) applyOverlays(canvas *image.RGBA, regions map[string]Region, vars map[string]Value, sensorVersion uint64) {
	yOffsets := make(map[string]int)

	for i := range c.cfg.Overlays {
		o := &c.cfg.Overlays[i]
		rendered := c.renderOverlayCached(o, vars, sensorVersion)
		if !rendered.Visible {
			continue
		}

		style := c.cfg.DefaultStyle
		if o.Style != nil {
			style = *o.Style
		}

		for _, camera := range o.Cameras {
			rg, ok := regions[camera]
			if !ok || rg.Empty() {
				continue
			}
			yOffsets[camera] = drawTextBox(canvas, rg, yOffsets[camera], rendered.Text, rendered.Color, style)
		}
	}
}

// renderOverlayCached reuses the previous tick's text and color while the
// sensor state version is unchanged.
func (c *Compositor) renderOverlayCached(o *OverlayConfig, vars map[string]Value, sensorVersion uint64) RenderedOverlay {
	c.mu.Lock()
	if entry, ok := c.overlayCache[o.ID]; ok && entry.version == sensorVersion {
		result := entry.result
		c.mu.Unlock()
		return result
	}
	c.mu.Unlock()

	result := RenderOverlay(o, vars)

	c.mu.Lock()
	c.overlayCache[o.ID] = &overlayEntry{version: sensorVersion, result: result}
	c.mu.Unlock()
	return result
}
