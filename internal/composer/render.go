package composer

import (
	"image"
	"image/color"
	"image/draw"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	// placeholderColor fills regions whose camera is missing or inactive.
	placeholderColor = color.RGBA{40, 40, 40, 255}
	// letterboxColor fills the bars around letterboxed camera images.
	letterboxColor = color.RGBA{0, 0, 0, 255}
)

func rgbaColor(c RGB) color.RGBA {
	return color.RGBA{c[0], c[1], c[2], 255}
}

func fillRect(dst *image.RGBA, r image.Rectangle, c color.RGBA) {
	draw.Draw(dst, r, image.NewUniform(c), image.Point{}, draw.Src)
}

// letterboxRect returns the centered destination rectangle for a source of
// size srcW x srcH inside bounds, preserving the source aspect ratio.
func letterboxRect(srcW, srcH int, bounds image.Rectangle) image.Rectangle {
	bw, bh := bounds.Dx(), bounds.Dy()
	if srcW <= 0 || srcH <= 0 || bw <= 0 || bh <= 0 {
		return image.Rectangle{}
	}

	// Compare aspect ratios without floats: srcW/srcH vs bw/bh.
	w, h := bw, bh
	if srcW*bh >= srcH*bw {
		h = srcH * bw / srcW
	} else {
		w = srcW * bh / srcH
	}

	x := bounds.Min.X + (bw-w)/2
	y := bounds.Min.Y + (bh-h)/2
	return image.Rect(x, y, x+w, y+h)
}

// renderRegionBitmap scales a camera image into a standalone region-sized
// bitmap: letterboxed, centered, background-filled. A nil source produces the
// solid placeholder fill. The result is what the compositor caches across
// frames.
func renderRegionBitmap(src image.Image, width, height int) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, width, height))
	if src == nil {
		fillRect(out, out.Bounds(), placeholderColor)
		return out
	}

	fillRect(out, out.Bounds(), letterboxColor)
	sb := src.Bounds()
	target := letterboxRect(sb.Dx(), sb.Dy(), out.Bounds())
	if !target.Empty() {
		xdraw.ApproxBiLinear.Scale(out, target, src, sb, draw.Src, nil)
	}
	return out
}

// rotateImage rotates a source image clockwise by 0, 90, 180, or 270 degrees.
// Any other angle returns the source unchanged. Applied once at ingest, not
// per frame, so rotation never shows up on the compose path.
func rotateImage(src image.Image, degrees int) image.Image {
	if degrees == 0 {
		return src
	}
	sb := src.Bounds()
	w, h := sb.Dx(), sb.Dy()

	var out *image.RGBA
	switch degrees {
	case 90:
		out = image.NewRGBA(image.Rect(0, 0, h, w))
	case 180:
		out = image.NewRGBA(image.Rect(0, 0, w, h))
	case 270:
		out = image.NewRGBA(image.Rect(0, 0, h, w))
	default:
		return src
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := src.At(sb.Min.X+x, sb.Min.Y+y)
			switch degrees {
			case 90:
				out.Set(h-1-y, x, c)
			case 180:
				out.Set(w-1-x, h-1-y, c)
			case 270:
				out.Set(y, w-1-x, c)
			}
		}
	}
	return out
}

// blitRegion copies a region bitmap onto the canvas at the region's offset.
func blitRegion(dst *image.RGBA, rg Region, bitmap *image.RGBA) {
	draw.Draw(dst, rg.Rect(), bitmap, bitmap.Bounds().Min, draw.Src)
}

// drawTextBox stamps one overlay text box at yOffset pixels below the
// region's top edge: a background bar across the region width, then the text.
// Bar and text are drawn through a sub-image of the region so neither can
// touch a neighboring camera's pixels. Returns the y offset for the next
// stacked box.
func drawTextBox(dst *image.RGBA, rg Region, yOffset int, text string, textColor RGB, style StyleConfig) int {
	bar := image.Rect(rg.X, rg.Y+yOffset, rg.X+rg.Width, rg.Y+yOffset+style.BoxHeight)
	bar = bar.Intersect(rg.Rect())
	if bar.Empty() {
		return yOffset + style.BoxHeight
	}

	sub := dst.SubImage(rg.Rect()).(*image.RGBA)
	fillRect(sub, bar, rgbaColor(style.Background))

	d := font.Drawer{
		Dst:  sub,
		Src:  image.NewUniform(rgbaColor(textColor)),
		Face: basicfont.Face7x13,
		Dot: fixed.P(
			rg.X+style.PaddingLeft,
			rg.Y+yOffset+style.PaddingTop,
		),
	}
	d.DrawString(text)

	return yOffset + style.BoxHeight
}

// drawCentermark draws a crosshair at the region center.
func drawCentermark(dst *image.RGBA, rg Region, cfg CentermarkConfig) {
	if !cfg.Enabled || rg.Empty() {
		return
	}
	cx := rg.X + rg.Width/2
	cy := rg.Y + rg.Height/2
	size := int(float64(rg.Width) * cfg.SizeRatio)
	if size < 1 {
		size = 1
	}
	t := cfg.Thickness
	if t < 1 {
		t = 1
	}
	c := rgbaColor(cfg.Color)

	h := image.Rect(cx-size, cy-t/2, cx+size, cy-t/2+t).Intersect(rg.Rect())
	v := image.Rect(cx-t/2, cy-size, cx-t/2+t, cy+size).Intersect(rg.Rect())
	fillRect(dst, h, c)
	fillRect(dst, v, c)
}

// drawBorder frames the region edges.
func drawBorder(dst *image.RGBA, rg Region, cfg BorderConfig) {
	if !cfg.Enabled || rg.Empty() {
		return
	}
	t := cfg.Thickness
	if t < 1 {
		t = 1
	}
	c := rgbaColor(cfg.Color)
	r := rg.Rect()

	fillRect(dst, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+t).Intersect(r), c)
	fillRect(dst, image.Rect(r.Min.X, r.Max.Y-t, r.Max.X, r.Max.Y).Intersect(r), c)
	fillRect(dst, image.Rect(r.Min.X, r.Min.Y, r.Min.X+t, r.Max.Y).Intersect(r), c)
	fillRect(dst, image.Rect(r.Max.X-t, r.Min.Y, r.Max.X, r.Max.Y).Intersect(r), c)
}
