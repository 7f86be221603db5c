package composer

import (
	"bytes"
	"image/color"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const compositorConfig = `
layouts:
  main:
    direction: horizontal
    children:
      - camera: A
      - camera: B
  solo:
    camera: A
active_layout: main
outputs:
  - name: primary
    width: 200
    height: 100
`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCompositor(t *testing.T, yamlDoc string) *Compositor {
	t.Helper()
	cfg, err := ParseConfig([]byte(yamlDoc))
	require.NoError(t, err)
	comp, err := NewCompositor(cfg, 2, testLogger(), nil)
	require.NoError(t, err)
	return comp
}

var (
	red   = color.RGBA{255, 0, 0, 255}
	green = color.RGBA{0, 255, 0, 255}
)

func TestCompositor_missingCameraRendersPlaceholder(t *testing.T) {
	t.Parallel()

	comp := newTestCompositor(t, compositorConfig)

	frames := comp.GenerateFrame()
	require.Len(t, frames, 1)
	frame := frames[0]

	assert.Equal(t, "primary", frame.Output)
	assert.Equal(t, "main", frame.Layout)
	assert.Equal(t, placeholderColor, frame.Image.RGBAAt(50, 50), "region A placeholder")
	assert.Equal(t, placeholderColor, frame.Image.RGBAAt(150, 50), "region B placeholder")
}

func TestCompositor_activeCameraIsBlitted(t *testing.T) {
	t.Parallel()

	comp := newTestCompositor(t, compositorConfig)
	comp.UpdateCameraImage("A", testImage(100, 100, red), true)

	frame := comp.GenerateFrame()[0]
	assert.Equal(t, red, frame.Image.RGBAAt(50, 50), "region A shows the camera image")
	assert.Equal(t, placeholderColor, frame.Image.RGBAAt(150, 50), "region B still placeholder")
}

func TestCompositor_inactiveCameraRendersPlaceholder(t *testing.T) {
	t.Parallel()

	comp := newTestCompositor(t, compositorConfig)
	comp.UpdateCameraImage("A", testImage(100, 100, red), false)

	frame := comp.GenerateFrame()[0]
	assert.Equal(t, placeholderColor, frame.Image.RGBAAt(50, 50))
}

func TestCompositor_idempotentWithoutUpdates(t *testing.T) {
	t.Parallel()

	comp := newTestCompositor(t, compositorConfig)
	comp.UpdateCameraImage("A", testImage(100, 100, red), true)
	comp.UpdateSensorData(map[string]Value{"speed": Number(3)})

	first := comp.GenerateFrame()[0]
	second := comp.GenerateFrame()[0]
	assert.True(t, bytes.Equal(first.Image.Pix, second.Image.Pix),
		"no input change must produce byte-identical output")
}

func TestCompositor_cacheInvalidatesOnCameraUpdate(t *testing.T) {
	t.Parallel()

	comp := newTestCompositor(t, compositorConfig)
	comp.UpdateCameraImage("A", testImage(100, 100, red), true)
	assert.Equal(t, red, comp.GenerateFrame()[0].Image.RGBAAt(50, 50))

	comp.UpdateCameraImage("A", testImage(100, 100, green), true)
	assert.Equal(t, green, comp.GenerateFrame()[0].Image.RGBAAt(50, 50),
		"a cached region must not be served after the sequence number advanced")
}

func TestCompositor_cacheInvalidatesOnLayoutSwap(t *testing.T) {
	t.Parallel()

	comp := newTestCompositor(t, compositorConfig)
	comp.UpdateCameraImage("A", testImage(200, 100, red), true)
	comp.GenerateFrame()

	require.NoError(t, comp.SetActiveLayout("solo"))
	assert.Equal(t, "solo", comp.ActiveLayout())

	frame := comp.GenerateFrame()[0]
	assert.Equal(t, "solo", frame.Layout)
	assert.Equal(t, red, frame.Image.RGBAAt(150, 50), "solo layout gives A the whole canvas")
}

func TestCompositor_setActiveLayoutUnknown(t *testing.T) {
	t.Parallel()

	comp := newTestCompositor(t, compositorConfig)
	err := comp.SetActiveLayout("nope")
	assert.ErrorIs(t, err, ErrUnknownLayout)
	assert.Equal(t, "main", comp.ActiveLayout(), "failed swap leaves the active layout alone")
}

func TestCompositor_overlayOnlyCameraDoesNotAffectFrame(t *testing.T) {
	t.Parallel()

	comp := newTestCompositor(t, `
layouts:
  main:
    camera: A
text_overlays:
  - id: x
    template: "static"
    cameras: [C]
outputs:
  - name: primary
    width: 100
    height: 100
`)
	comp.UpdateCameraImage("A", testImage(100, 100, red), true)

	before := comp.GenerateFrame()[0]
	comp.UpdateCameraImage("C", testImage(100, 100, green), true)
	after := comp.GenerateFrame()[0]

	assert.True(t, bytes.Equal(before.Image.Pix, after.Image.Pix),
		"a camera referenced only by an overlay target list must not affect the frame")
}

func TestCompositor_overlaysStampTargetRegions(t *testing.T) {
	t.Parallel()

	comp := newTestCompositor(t, `
layouts:
  main:
    direction: horizontal
    children:
      - camera: A
      - camera: B
text_overlays:
  - id: x
    template: "hello"
    cameras: [A]
outputs:
  - name: primary
    width: 200
    height: 100
`)

	frame := comp.GenerateFrame()[0]
	// Default style paints a black background bar across region A only.
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, frame.Image.RGBAAt(99, 0), "bar on region A")
	assert.Equal(t, placeholderColor, frame.Image.RGBAAt(199, 0), "region B untouched")
}

func TestCompositor_outputWithoutOverlays(t *testing.T) {
	t.Parallel()

	comp := newTestCompositor(t, `
layouts:
  main:
    camera: A
text_overlays:
  - id: x
    template: "hello"
    cameras: [A]
outputs:
  - name: annotated
    width: 100
    height: 100
  - name: clean
    width: 100
    height: 100
    draw_overlays: false
`)

	frames := comp.GenerateFrame()
	require.Len(t, frames, 2)
	assert.Equal(t, "annotated", frames[0].Output)
	assert.Equal(t, "clean", frames[1].Output)

	assert.Equal(t, color.RGBA{0, 0, 0, 255}, frames[0].Image.RGBAAt(50, 0))
	assert.Equal(t, placeholderColor, frames[1].Image.RGBAAt(50, 0))
}

func TestCompositor_sensorUpdateChangesOverlay(t *testing.T) {
	t.Parallel()

	comp := newTestCompositor(t, `
layouts:
  main:
    camera: A
text_overlays:
  - id: warn
    template: "W"
    cameras: [A]
    visible_when: "{warn} == true"
outputs:
  - name: primary
    width: 100
    height: 100
`)

	hidden := comp.GenerateFrame()[0]
	assert.Equal(t, placeholderColor, hidden.Image.RGBAAt(50, 0), "overlay hidden while warn is unset")

	comp.UpdateSensorData(map[string]Value{"warn": Bool(true)})
	shown := comp.GenerateFrame()[0]
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, shown.Image.RGBAAt(50, 0), "overlay appears after the sensor merge")
}

func TestCompositor_generateOutput(t *testing.T) {
	t.Parallel()

	comp := newTestCompositor(t, compositorConfig)

	frame, err := comp.GenerateOutput("primary")
	require.NoError(t, err)
	assert.Equal(t, "primary", frame.Output)

	_, err = comp.GenerateOutput("nope")
	assert.ErrorIs(t, err, ErrUnknownOutput)
}

func TestCompositor_perOutputLayouts(t *testing.T) {
	t.Parallel()

	comp := newTestCompositor(t, `
layouts:
  main:
    direction: horizontal
    children:
      - camera: A
      - camera: B
  solo:
    camera: B
outputs:
  - name: wall
    width: 200
    height: 100
  - name: pilot
    layout: solo
    width: 100
    height: 100
`)
	comp.UpdateCameraImage("B", testImage(100, 100, green), true)

	frames := comp.GenerateFrame()
	require.Len(t, frames, 2)
	assert.Equal(t, "main", frames[0].Layout)
	assert.Equal(t, "solo", frames[1].Layout)
	assert.Equal(t, green, frames[0].Image.RGBAAt(150, 50), "B in the right half of the wall output")
	assert.Equal(t, green, frames[1].Image.RGBAAt(50, 50), "B fills the pilot output")
}

func TestCompositor_ingestRotation(t *testing.T) {
	t.Parallel()

	comp := newTestCompositor(t, `
cameras:
  A:
    rotate: 90
layouts:
  main:
    camera: A
outputs:
  - name: primary
    width: 100
    height: 200
`)

	// A 200x100 source rotated 90 degrees becomes 100x200 and fills the
	// portrait canvas without letterbox bars.
	comp.UpdateCameraImage("A", testImage(200, 100, red), true)

	frame := comp.GenerateFrame()[0]
	assert.Equal(t, red, frame.Image.RGBAAt(50, 5), "no letterbox bar at the top")
	assert.Equal(t, red, frame.Image.RGBAAt(50, 195), "no letterbox bar at the bottom")
}

func TestCompositor_centermarkOnFlaggedCamera(t *testing.T) {
	t.Parallel()

	comp := newTestCompositor(t, `
cameras:
  A:
    resolution: [100, 100]
    centermark: true
layouts:
  main:
    camera: A
centermark:
  enabled: true
  size_ratio: 0.1
  thickness: 2
  color: [255, 0, 255]
outputs:
  - name: primary
    width: 100
    height: 100
`)
	comp.UpdateCameraImage("A", testImage(100, 100, red), true)

	frame := comp.GenerateFrame()[0]
	assert.Equal(t, color.RGBA{255, 0, 255, 255}, frame.Image.RGBAAt(50, 50))
	assert.Equal(t, red, frame.Image.RGBAAt(20, 20))
}
