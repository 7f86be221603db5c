package composer

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayout_Resolve_twoHorizontal(t *testing.T) {
	t.Parallel()

	l, err := NewLayout("main", Split(Horizontal, Leaf("A"), Leaf("B")))
	require.NoError(t, err)

	got := l.Resolve(200, 100)
	want := map[string]Region{
		"A": {X: 0, Y: 0, Width: 100, Height: 100},
		"B": {X: 100, Y: 0, Width: 100, Height: 100},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Resolve mismatch (-want +got):\n%s", diff)
	}
}

func TestLayout_Resolve_weighted(t *testing.T) {
	t.Parallel()

	left := Leaf("A")
	left.Weight = 3
	right := Leaf("B")
	right.Weight = 1
	l, err := NewLayout("main", Split(Horizontal, left, right))
	require.NoError(t, err)

	got := l.Resolve(400, 100)
	assert.Equal(t, Region{X: 0, Y: 0, Width: 300, Height: 100}, got["A"])
	assert.Equal(t, Region{X: 300, Y: 0, Width: 100, Height: 100}, got["B"])
}

func TestLayout_Resolve_nested(t *testing.T) {
	t.Parallel()

	// Left column is one camera, right column stacks two.
	l, err := NewLayout("main", Split(Horizontal,
		Leaf("ee_cam"),
		Split(Vertical, Leaf("top_cam"), Leaf("base_cam")),
	))
	require.NoError(t, err)

	got := l.Resolve(640, 480)
	assert.Equal(t, Region{X: 0, Y: 0, Width: 320, Height: 480}, got["ee_cam"])
	assert.Equal(t, Region{X: 320, Y: 0, Width: 320, Height: 240}, got["top_cam"])
	assert.Equal(t, Region{X: 320, Y: 240, Width: 320, Height: 240}, got["base_cam"])
}

// regionsTile verifies the partition property: regions stay inside the
// canvas, overlap nowhere, and their areas sum to the canvas area.
func regionsTile(t *testing.T, regions map[string]Region, width, height int) {
	t.Helper()

	canvas := Region{Width: width, Height: height}.Rect()
	area := 0
	keys := make([]string, 0, len(regions))
	for id, rg := range regions {
		r := rg.Rect()
		assert.True(t, r.In(canvas) || r.Empty(), "region %s %v escapes canvas", id, r)
		area += rg.Width * rg.Height
		keys = append(keys, id)
	}
	assert.Equal(t, width*height, area, "region areas must sum to the canvas area")

	for i, a := range keys {
		for _, b := range keys[i+1:] {
			ra, rb := regions[a].Rect(), regions[b].Rect()
			assert.True(t, ra.Intersect(rb).Empty(), "regions %s and %s overlap", a, b)
		}
	}
}

func TestLayout_Resolve_partitionProperty(t *testing.T) {
	t.Parallel()

	layouts := map[string]*LayoutNode{
		"single": Leaf("A"),
		"uneven three": Split(Horizontal,
			Leaf("A"), Leaf("B"), Leaf("C"),
		),
		"deep": Split(Vertical,
			Split(Horizontal, Leaf("A"), Leaf("B"), Leaf("C")),
			Split(Horizontal,
				Leaf("D"),
				Split(Vertical, Leaf("E"), Leaf("F")),
			),
		),
	}
	sizes := [][2]int{{200, 100}, {1280, 720}, {7, 3}, {101, 37}, {1, 1}}

	for name, root := range layouts {
		for _, size := range sizes {
			l, err := NewLayout(name, root)
			require.NoError(t, err)
			regions := l.Resolve(size[0], size[1])

			leaves := make(map[string]bool)
			collectCameraIDs(root, leaves)
			assert.Len(t, regions, len(leaves), "%s at %v", name, size)
			regionsTile(t, regions, size[0], size[1])
		}
	}
}

func TestLayout_Resolve_zeroExtentDegrades(t *testing.T) {
	t.Parallel()

	l, err := NewLayout("main", Split(Horizontal, Leaf("A"), Leaf("B")))
	require.NoError(t, err)

	got := l.Resolve(0, 100)
	require.Len(t, got, 2)
	assert.True(t, got["A"].Empty())
	assert.True(t, got["B"].Empty())
}

func TestLayout_CameraIDs(t *testing.T) {
	t.Parallel()

	l, err := NewLayout("main", Split(Vertical,
		Leaf("b_cam"),
		Split(Horizontal, Leaf("a_cam"), Leaf("c_cam")),
	))
	require.NoError(t, err)

	assert.Equal(t, []string{"a_cam", "b_cam", "c_cam"}, l.CameraIDs())
}

func TestNewLayout_rejectsEmptySplit(t *testing.T) {
	t.Parallel()

	_, err := NewLayout("main", Split(Horizontal))
	require.Error(t, err)
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestNewLayout_rejectsDuplicateCamera(t *testing.T) {
	t.Parallel()

	// Regions are keyed by camera, so a camera in two leaves would leave one
	// of its regions unpainted.
	_, err := NewLayout("main", Split(Horizontal, Leaf("A"), Leaf("A")))
	require.Error(t, err)
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)

	_, err = NewLayout("main", Split(Horizontal,
		Leaf("A"),
		Split(Vertical, Leaf("B"), Leaf("A")),
	))
	require.Error(t, err, "duplicates across nesting levels are also rejected")
}

func TestNewLayout_rejectsNilRoot(t *testing.T) {
	t.Parallel()

	_, err := NewLayout("main", nil)
	require.Error(t, err)
}

func TestLayout_Resolve_singleChildSplit(t *testing.T) {
	t.Parallel()

	l, err := NewLayout("main", Split(Vertical, Leaf("A")))
	require.NoError(t, err)
	assert.Equal(t, Region{X: 0, Y: 0, Width: 320, Height: 240}, l.Resolve(320, 240)["A"])
}
