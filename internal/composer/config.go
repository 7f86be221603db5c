package composer

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ConfigError reports a malformed viewer configuration. It is the only hard
// failure the package surfaces: everything reachable on the per-tick path
// degrades to placeholders or sentinels instead.
type ConfigError struct {
	Path string
	Msg  string
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return "config: " + e.Msg
	}
	return "config: " + e.Path + ": " + e.Msg
}

// RGB is a color as configured in YAML, in [r, g, b] order.
type RGB [3]uint8

// CameraDef declares a camera in the configuration: its nominal resolution
// (height, width), an ingest rotation in degrees (0, 90, 180, or 270,
// clockwise), and whether its regions get a centermark crosshair.
type CameraDef struct {
	Resolution [2]int `yaml:"resolution"`
	Rotate     int    `yaml:"rotate"`
	Centermark bool   `yaml:"centermark"`
}

// StyleConfig controls how overlay text boxes are drawn.
type StyleConfig struct {
	BoxHeight   int `yaml:"box_height"`
	PaddingLeft int `yaml:"padding_left"`
	PaddingTop  int `yaml:"padding_top"`
	Background  RGB `yaml:"background_color"`
}

// DefaultStyle returns the style used when the configuration sets none.
func DefaultStyle() StyleConfig {
	return StyleConfig{BoxHeight: 20, PaddingLeft: 5, PaddingTop: 15}
}

// UnmarshalYAML fills unset style fields with defaults.
func (s *StyleConfig) UnmarshalYAML(node *yaml.Node) error {
	type raw StyleConfig
	r := raw(DefaultStyle())
	if err := node.Decode(&r); err != nil {
		return err
	}
	*s = StyleConfig(r)
	if s.BoxHeight <= 0 {
		s.BoxHeight = DefaultStyle().BoxHeight
	}
	return nil
}

// VariableKind discriminates derived-variable specs.
type VariableKind int

const (
	// VariableDirect aliases an existing context variable.
	VariableDirect VariableKind = iota
	// VariableFormula computes an arithmetic expression.
	VariableFormula
	// VariableConditional selects the first truthy when-branch, else the
	// mandatory trailing else branch.
	VariableConditional
)

// Branch is one arm of a conditional variable: a predicate (nil for the else
// arm) plus either a literal value or a nested format template.
type Branch struct {
	When   *string
	Value  *string
	Format *string
}

// IsElse reports whether the branch is the unconditional trailing arm.
func (b Branch) IsElse() bool { return b.When == nil }

// VariableSpec configures one derived overlay variable.
type VariableSpec struct {
	Kind     VariableKind
	Expr     string
	Branches []Branch
}

type branchYAML struct {
	When   *string `yaml:"when"`
	Value  *string `yaml:"value"`
	Format *string `yaml:"format"`
	Else   *string `yaml:"else"`
}

// UnmarshalYAML accepts either a bare string (a direct reference) or a
// mapping with type/expr/conditions.
func (v *VariableSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		*v = VariableSpec{Kind: VariableDirect, Expr: s}
		return nil
	}

	var raw struct {
		Type       string       `yaml:"type"`
		Expr       string       `yaml:"expr"`
		Conditions []branchYAML `yaml:"conditions"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	switch raw.Type {
	case "", "direct":
		v.Kind = VariableDirect
	case "formula":
		v.Kind = VariableFormula
	case "conditional":
		v.Kind = VariableConditional
	default:
		return &ConfigError{Msg: fmt.Sprintf("unknown variable type %q", raw.Type)}
	}
	v.Expr = raw.Expr

	v.Branches = nil
	for _, c := range raw.Conditions {
		b := Branch{When: c.When, Value: c.Value, Format: c.Format}
		if c.Else != nil {
			b.When = nil
			b.Value = c.Else
		}
		v.Branches = append(v.Branches, b)
	}
	return nil
}

// VariableAssignment pairs a derived-variable name with its spec. Assignments
// evaluate in declaration order; later variables see earlier results.
type VariableAssignment struct {
	Name string
	Spec VariableSpec
}

// VariableList preserves YAML mapping order, which a Go map would lose.
type VariableList []VariableAssignment

// UnmarshalYAML decodes a YAML mapping into an ordered assignment list.
func (l *VariableList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return &ConfigError{Msg: "variables must be a mapping"}
	}
	out := make(VariableList, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var a VariableAssignment
		if err := node.Content[i].Decode(&a.Name); err != nil {
			return err
		}
		if err := node.Content[i+1].Decode(&a.Spec); err != nil {
			return err
		}
		out = append(out, a)
	}
	*l = out
	return nil
}

// ColorRule maps a predicate to a color. A nil When is the mandatory trailing
// else rule, so a rule list always resolves.
type ColorRule struct {
	When  *string
	Color RGB
}

// UnmarshalYAML accepts {when: ..., color: [r,g,b]} or {else: [r,g,b]}.
func (c *ColorRule) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		When  *string `yaml:"when"`
		Color *RGB    `yaml:"color"`
		Else  *RGB    `yaml:"else"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	switch {
	case raw.Else != nil:
		*c = ColorRule{When: nil, Color: *raw.Else}
	case raw.Color != nil:
		*c = ColorRule{When: raw.When, Color: *raw.Color}
	default:
		return &ConfigError{Msg: "color rule needs a color"}
	}
	return nil
}

// OverlayConfig configures one text overlay: a template, the cameras whose
// regions it stamps, derived variables, and how its color is chosen.
type OverlayConfig struct {
	ID          string       `yaml:"id"`
	Template    string       `yaml:"template"`
	Cameras     []string     `yaml:"cameras"`
	Variables   VariableList `yaml:"variables"`
	ColorRules  []ColorRule  `yaml:"color_rules"`
	Color       *RGB         `yaml:"color"`
	Style       *StyleConfig `yaml:"style"`
	VisibleWhen string       `yaml:"visible_when"`
}

// CentermarkConfig controls the crosshair drawn on cameras that request it.
type CentermarkConfig struct {
	Enabled   bool    `yaml:"enabled"`
	SizeRatio float64 `yaml:"size_ratio"`
	Thickness int     `yaml:"thickness"`
	Color     RGB     `yaml:"color"`
}

func defaultCentermark() CentermarkConfig {
	return CentermarkConfig{Enabled: true, SizeRatio: 0.025, Thickness: 2, Color: RGB{255, 0, 255}}
}

// UnmarshalYAML fills unset centermark fields with defaults.
func (c *CentermarkConfig) UnmarshalYAML(node *yaml.Node) error {
	type raw CentermarkConfig
	r := raw(defaultCentermark())
	if err := node.Decode(&r); err != nil {
		return err
	}
	*c = CentermarkConfig(r)
	return nil
}

// BorderConfig controls the frame drawn around each camera region.
type BorderConfig struct {
	Enabled   bool `yaml:"enabled"`
	Thickness int  `yaml:"thickness"`
	Color     RGB  `yaml:"color"`
}

func defaultBorder() BorderConfig {
	return BorderConfig{Enabled: false, Thickness: 1, Color: RGB{255, 255, 255}}
}

// UnmarshalYAML fills unset border fields with defaults.
func (b *BorderConfig) UnmarshalYAML(node *yaml.Node) error {
	type raw BorderConfig
	r := raw{Enabled: true, Thickness: 1, Color: RGB{255, 255, 255}}
	if err := node.Decode(&r); err != nil {
		return err
	}
	*b = BorderConfig(r)
	return nil
}

// LayoutNodeConfig is the YAML form of a layout tree node.
type LayoutNodeConfig struct {
	Camera    string              `yaml:"camera"`
	Direction string              `yaml:"direction"`
	Weight    float64             `yaml:"weight"`
	Children  []*LayoutNodeConfig `yaml:"children"`
}

// OutputConfig names one composed canvas: which layout it renders (empty
// means "follow the active layout"), its pixel size, and whether text
// overlays are stamped on it.
type OutputConfig struct {
	Name         string `yaml:"name"`
	Layout       string `yaml:"layout"`
	Width        int    `yaml:"width"`
	Height       int    `yaml:"height"`
	DrawOverlays *bool  `yaml:"draw_overlays"`
}

// Overlays reports whether overlays are drawn on this output (default true).
func (o OutputConfig) Overlays() bool {
	return o.DrawOverlays == nil || *o.DrawOverlays
}

// Config is the full parsed viewer configuration. It is read-only to the
// composer after construction.
type Config struct {
	Cameras      map[string]CameraDef         `yaml:"cameras"`
	DefaultStyle StyleConfig                  `yaml:"default_overlay_style"`
	Overlays     []OverlayConfig              `yaml:"text_overlays"`
	Centermark   CentermarkConfig             `yaml:"centermark"`
	Border       BorderConfig                 `yaml:"border"`
	Layouts      map[string]*LayoutNodeConfig `yaml:"layouts"`
	ActiveLayout string                       `yaml:"active_layout"`
	Outputs      []OutputConfig               `yaml:"outputs"`
}

// DefaultCanvasWidth and DefaultCanvasHeight size the implicit output used
// when the configuration declares none.
const (
	DefaultCanvasWidth  = 1280
	DefaultCanvasHeight = 720
)

// LoadConfig reads and validates a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Msg: fmt.Sprintf("read %s: %v", path, err)}
	}
	return ParseConfig(data)
}

// ParseConfig parses and validates YAML configuration bytes. All structural
// problems are rejected here so the per-tick path never sees malformed input.
func ParseConfig(data []byte) (*Config, error) {
	cfg := &Config{
		DefaultStyle: DefaultStyle(),
		Centermark:   defaultCentermark(),
		Border:       defaultBorder(),
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &ConfigError{Msg: "invalid yaml: " + err.Error()}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.Layouts) == 0 {
		return &ConfigError{Path: "layouts", Msg: "at least one layout is required"}
	}

	for name, cam := range c.Cameras {
		switch cam.Rotate {
		case 0, 90, 180, 270:
		default:
			return &ConfigError{Path: "cameras." + name + ".rotate", Msg: fmt.Sprintf("must be 0, 90, 180, or 270, got %d", cam.Rotate)}
		}
	}
	for name, node := range c.Layouts {
		if err := validateLayoutNodeConfig(node, "layouts."+name, map[string]bool{}); err != nil {
			return err
		}
	}

	if c.ActiveLayout == "" {
		c.ActiveLayout = "main"
	}
	if _, ok := c.Layouts[c.ActiveLayout]; !ok {
		return &ConfigError{Path: "active_layout", Msg: fmt.Sprintf("layout %q is not defined", c.ActiveLayout)}
	}

	for i := range c.Overlays {
		if err := validateOverlay(&c.Overlays[i], fmt.Sprintf("text_overlays[%d]", i)); err != nil {
			return err
		}
	}

	if len(c.Outputs) == 0 {
		c.Outputs = []OutputConfig{{Name: "default", Width: DefaultCanvasWidth, Height: DefaultCanvasHeight}}
	}
	seen := make(map[string]bool, len(c.Outputs))
	for i := range c.Outputs {
		out := &c.Outputs[i]
		path := fmt.Sprintf("outputs[%d]", i)
		if out.Name == "" {
			return &ConfigError{Path: path, Msg: "output needs a name"}
		}
		if seen[out.Name] {
			return &ConfigError{Path: path, Msg: fmt.Sprintf("duplicate output name %q", out.Name)}
		}
		seen[out.Name] = true
		if out.Width <= 0 || out.Height <= 0 {
			return &ConfigError{Path: path, Msg: "output width and height must be positive"}
		}
		if out.Layout != "" {
			if _, ok := c.Layouts[out.Layout]; !ok {
				return &ConfigError{Path: path + ".layout", Msg: fmt.Sprintf("layout %q is not defined", out.Layout)}
			}
		}
	}

	return nil
}

func validateLayoutNodeConfig(node *LayoutNodeConfig, path string, seen map[string]bool) error {
	if node == nil {
		return &ConfigError{Path: path, Msg: "layout node is empty"}
	}
	if node.Camera != "" {
		if len(node.Children) > 0 {
			return &ConfigError{Path: path, Msg: "leaf node cannot have children"}
		}
		if seen[node.Camera] {
			return &ConfigError{Path: path, Msg: fmt.Sprintf("camera %q appears in more than one leaf", node.Camera)}
		}
		seen[node.Camera] = true
		return nil
	}
	if node.Direction != "horizontal" && node.Direction != "vertical" {
		return &ConfigError{Path: path + ".direction", Msg: fmt.Sprintf("must be horizontal or vertical, got %q", node.Direction)}
	}
	if len(node.Children) == 0 {
		return &ConfigError{Path: path + ".children", Msg: "split node needs at least one child"}
	}
	if node.Weight < 0 {
		return &ConfigError{Path: path + ".weight", Msg: "weight cannot be negative"}
	}
	for i, child := range node.Children {
		if err := validateLayoutNodeConfig(child, fmt.Sprintf("%s.children[%d]", path, i), seen); err != nil {
			return err
		}
	}
	return nil
}

func validateOverlay(o *OverlayConfig, path string) error {
	if o.ID == "" {
		return &ConfigError{Path: path, Msg: "overlay needs an id"}
	}
	if o.Template == "" {
		return &ConfigError{Path: path, Msg: "overlay needs a template"}
	}
	for _, a := range o.Variables {
		vpath := path + ".variables." + a.Name
		switch a.Spec.Kind {
		case VariableDirect, VariableFormula:
			if a.Spec.Expr == "" {
				return &ConfigError{Path: vpath, Msg: "variable needs an expr"}
			}
		case VariableConditional:
			if len(a.Spec.Branches) == 0 {
				return &ConfigError{Path: vpath, Msg: "conditional variable needs conditions"}
			}
			last := a.Spec.Branches[len(a.Spec.Branches)-1]
			if !last.IsElse() {
				return &ConfigError{Path: vpath, Msg: "conditional variable needs a trailing else"}
			}
			for i, b := range a.Spec.Branches[:len(a.Spec.Branches)-1] {
				if b.IsElse() {
					return &ConfigError{Path: fmt.Sprintf("%s.conditions[%d]", vpath, i), Msg: "else must be the last condition"}
				}
			}
		}
	}
	if len(o.ColorRules) > 0 {
		last := o.ColorRules[len(o.ColorRules)-1]
		if last.When != nil {
			return &ConfigError{Path: path + ".color_rules", Msg: "color rules need a trailing else"}
		}
	}
	return nil
}

// BuildLayout turns a validated layout node config into an immutable Layout.
func BuildLayout(name string, node *LayoutNodeConfig) (*Layout, error) {
	return NewLayout(name, buildLayoutNode(node))
}

func buildLayoutNode(node *LayoutNodeConfig) *LayoutNode {
	if node == nil {
		return nil
	}
	if node.Camera != "" {
		return &LayoutNode{Camera: node.Camera, Weight: node.Weight}
	}
	dir := Horizontal
	if node.Direction == "vertical" {
		dir = Vertical
	}
	out := &LayoutNode{Direction: dir, Weight: node.Weight}
	for _, child := range node.Children {
		out.Children = append(out.Children, buildLayoutNode(child))
	}
	return out
}
