package composer

import (
	"fmt"
	"image"
	"math"
	"sort"
)

// Direction is the split axis of an internal layout node.
type Direction int

const (
	// Horizontal splits a rectangle into side-by-side columns.
	Horizontal Direction = iota
	// Vertical splits a rectangle into stacked rows.
	Vertical
)

// Region is an axis-aligned pixel rectangle assigned to one camera.
type Region struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Rect converts the region to a stdlib image.Rectangle.
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Empty reports whether the region has zero area.
func (r Region) Empty() bool { return r.Width <= 0 || r.Height <= 0 }

// LayoutNode is a node of the layout tree: either a leaf bound to a camera
// (Camera non-empty) or a split with a direction and ordered children.
// Weight sets the node's share of its parent's split axis; zero means 1.
type LayoutNode struct {
	Camera    string
	Direction Direction
	Weight    float64
	Children  []*LayoutNode
}

// IsLeaf reports whether the node is bound to a camera.
func (n *LayoutNode) IsLeaf() bool { return n.Camera != "" }

func (n *LayoutNode) weight() float64 {
	if n.Weight > 0 {
		return n.Weight
	}
	return 1
}

// Layout is an immutable, validated layout tree. Build one with NewLayout;
// changing a layout means building a new one and swapping the reference.
type Layout struct {
	name      string
	root      *LayoutNode
	cameraIDs []string
}

// NewLayout validates the tree rooted at root and returns an immutable Layout.
// A split node with no children is rejected, as is a camera bound to more than
// one leaf: regions are keyed by camera, so a duplicate leaf would leave part
// of the canvas unpainted.
func NewLayout(name string, root *LayoutNode) (*Layout, error) {
	if root == nil {
		return nil, &ConfigError{Path: "layouts." + name, Msg: "layout has no root node"}
	}
	seen := make(map[string]bool)
	if err := validateNode(root, "layouts."+name, seen); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return &Layout{name: name, root: root, cameraIDs: ids}, nil
}

func validateNode(n *LayoutNode, path string, seen map[string]bool) error {
	if n.IsLeaf() {
		if seen[n.Camera] {
			return &ConfigError{Path: path, Msg: fmt.Sprintf("camera %q appears in more than one leaf", n.Camera)}
		}
		seen[n.Camera] = true
		return nil
	}
	if len(n.Children) == 0 {
		return &ConfigError{Path: path, Msg: "split node has no children"}
	}
	for i, child := range n.Children {
		if child == nil {
			return &ConfigError{Path: fmt.Sprintf("%s.children[%d]", path, i), Msg: "nil child node"}
		}
		if err := validateNode(child, fmt.Sprintf("%s.children[%d]", path, i), seen); err != nil {
			return err
		}
	}
	return nil
}

func collectCameraIDs(n *LayoutNode, out map[string]bool) {
	if n.IsLeaf() {
		out[n.Camera] = true
		return
	}
	for _, child := range n.Children {
		collectCameraIDs(child, out)
	}
}

// Name returns the layout's configured name.
func (l *Layout) Name() string { return l.name }

// CameraIDs returns the sorted set of camera identifiers referenced by the
// tree's leaves. Cameras outside this set are not pulled when composing.
func (l *Layout) CameraIDs() []string { return l.cameraIDs }

// Resolve partitions a canvas of the given size among the tree's leaves and
// returns the pixel region per camera. Children share their parent's split
// axis proportionally to their weights; split boundaries are rounded so the
// regions tile the canvas exactly. A zero-extent axis degrades to zero-area
// regions rather than failing.
func (l *Layout) Resolve(width, height int) map[string]Region {
	out := make(map[string]Region, len(l.cameraIDs))
	resolveNode(l.root, Region{X: 0, Y: 0, Width: width, Height: height}, out)
	return out
}

func resolveNode(n *LayoutNode, rg Region, out map[string]Region) {
	if n.IsLeaf() {
		out[n.Camera] = rg
		return
	}

	var sum float64
	for _, child := range n.Children {
		sum += child.weight()
	}

	// Boundaries come from rounding the cumulative weight fraction, so
	// adjacent children meet exactly and the last child ends at the edge.
	var cum float64
	var extent int
	if n.Direction == Horizontal {
		extent = rg.Width
	} else {
		extent = rg.Height
	}

	start := 0
	for _, child := range n.Children {
		cum += child.weight()
		end := int(math.Round(float64(extent) * cum / sum))
		if n.Direction == Horizontal {
			resolveNode(child, Region{X: rg.X + start, Y: rg.Y, Width: end - start, Height: rg.Height}, out)
		} else {
			resolveNode(child, Region{X: rg.X, Y: rg.Y + start, Width: rg.Width, Height: end - start}, out)
		}
		start = end
	}
}

// Leaf returns a leaf node bound to a camera identifier.
func Leaf(camera string) *LayoutNode {
	return &LayoutNode{Camera: camera}
}

// Split returns an internal node splitting along dir with the given children.
func Split(dir Direction, children ...*LayoutNode) *LayoutNode {
	return &LayoutNode{Direction: dir, Children: children}
}
