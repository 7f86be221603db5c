package composer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const exampleConfig = `
cameras:
  ee_cam:
    resolution: [480, 640]
    centermark: true
  top_cam:
    resolution: [480, 640]

default_overlay_style:
  box_height: 24
  padding_left: 6
  padding_top: 16
  background_color: [0, 0, 0]

text_overlays:
  - id: laser
    template: "Dist: {d}"
    cameras: [ee_cam]
    variables:
      kmh:
        type: formula
        expr: "{speed_ms} * 3.6"
      d:
        type: conditional
        conditions:
          - when: "{active}==false"
            value: "N/A"
          - format: "{distance_cm:.2f}cm"
    color_rules:
      - when: "{distance_cm} < 1"
        color: [255, 0, 0]
      - else: [255, 255, 255]

layouts:
  main:
    direction: horizontal
    children:
      - camera: ee_cam
      - camera: top_cam
  solo:
    camera: ee_cam

active_layout: main

outputs:
  - name: primary
    width: 1280
    height: 720
`

func TestParseConfig_example(t *testing.T) {
	t.Parallel()

	cfg, err := ParseConfig([]byte(exampleConfig))
	require.NoError(t, err)

	assert.Len(t, cfg.Cameras, 2)
	assert.True(t, cfg.Cameras["ee_cam"].Centermark)
	assert.Equal(t, 24, cfg.DefaultStyle.BoxHeight)
	assert.Equal(t, "main", cfg.ActiveLayout)
	require.Len(t, cfg.Outputs, 1)
	assert.Equal(t, "primary", cfg.Outputs[0].Name)
	assert.True(t, cfg.Outputs[0].Overlays())

	require.Len(t, cfg.Overlays, 1)
	o := cfg.Overlays[0]
	require.Len(t, o.Variables, 2)
	assert.Equal(t, "kmh", o.Variables[0].Name, "variable order must follow declaration order")
	assert.Equal(t, VariableFormula, o.Variables[0].Spec.Kind)
	assert.Equal(t, "d", o.Variables[1].Name)
	assert.Equal(t, VariableConditional, o.Variables[1].Spec.Kind)
	require.Len(t, o.ColorRules, 2)
	assert.Nil(t, o.ColorRules[1].When)
}

func TestParseConfig_defaultOutput(t *testing.T) {
	t.Parallel()

	cfg, err := ParseConfig([]byte("layouts:\n  main:\n    camera: a\n"))
	require.NoError(t, err)
	require.Len(t, cfg.Outputs, 1)
	assert.Equal(t, DefaultCanvasWidth, cfg.Outputs[0].Width)
	assert.Equal(t, DefaultCanvasHeight, cfg.Outputs[0].Height)
}

func TestParseConfig_directVariableShorthand(t *testing.T) {
	t.Parallel()

	cfg, err := ParseConfig([]byte(`
layouts:
  main:
    camera: a
text_overlays:
  - id: x
    template: "{v}"
    variables:
      v: "{speed}"
`))
	require.NoError(t, err)
	v := cfg.Overlays[0].Variables[0]
	assert.Equal(t, VariableDirect, v.Spec.Kind)
	assert.Equal(t, "{speed}", v.Spec.Expr)
}

func TestParseConfig_errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
	}{
		{"no layouts", "cameras: {}\n"},
		{"empty split", `
layouts:
  main:
    direction: horizontal
    children: []
`},
		{"bad direction", `
layouts:
  main:
    direction: diagonal
    children:
      - camera: a
`},
		{"unknown active layout", `
layouts:
  main:
    camera: a
active_layout: missing
`},
		{"overlay without id", `
layouts:
  main:
    camera: a
text_overlays:
  - template: "x"
`},
		{"overlay without template", `
layouts:
  main:
    camera: a
text_overlays:
  - id: x
`},
		{"conditional without else", `
layouts:
  main:
    camera: a
text_overlays:
  - id: x
    template: "{v}"
    variables:
      v:
        type: conditional
        conditions:
          - when: "{a} == 1"
            value: "one"
`},
		{"color rules without else", `
layouts:
  main:
    camera: a
text_overlays:
  - id: x
    template: "x"
    color_rules:
      - when: "{a} == 1"
        color: [1, 2, 3]
`},
		{"output with unknown layout", `
layouts:
  main:
    camera: a
outputs:
  - name: x
    layout: missing
    width: 100
    height: 100
`},
		{"output without size", `
layouts:
  main:
    camera: a
outputs:
  - name: x
`},
		{"duplicate output names", `
layouts:
  main:
    camera: a
outputs:
  - name: x
    width: 10
    height: 10
  - name: x
    width: 20
    height: 20
`},
		{"duplicate camera in layout", `
layouts:
  main:
    direction: horizontal
    children:
      - camera: a
      - camera: a
`},
		{"bad rotate", `
cameras:
  a:
    rotate: 45
layouts:
  main:
    camera: a
`},
		{"not yaml", "\t{nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.yaml))
			require.Error(t, err)
			var cfgErr *ConfigError
			assert.ErrorAs(t, err, &cfgErr, "want ConfigError, got %v", err)
		})
	}
}

func TestBuildLayout_fromConfig(t *testing.T) {
	t.Parallel()

	cfg, err := ParseConfig([]byte(exampleConfig))
	require.NoError(t, err)

	l, err := BuildLayout("main", cfg.Layouts["main"])
	require.NoError(t, err)
	assert.Equal(t, []string{"ee_cam", "top_cam"}, l.CameraIDs())

	regions := l.Resolve(200, 100)
	assert.Equal(t, Region{X: 0, Y: 0, Width: 100, Height: 100}, regions["ee_cam"])
	assert.Equal(t, Region{X: 100, Y: 0, Width: 100, Height: 100}, regions["top_cam"])
}
