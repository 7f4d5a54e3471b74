package composition

import (
	"image"
	"math"
)

// frame is the precomputed per-pixel analysis a scoring pass works from:
// luminance (0-255), Sobel gradients, and gradient magnitude.
type frame struct {
	w, h int
	lum  []float64
	gx   []float64
	gy   []float64
	mag  []float64
}

// edgeThreshold is the gradient magnitude above which a pixel counts as an
// edge for density purposes, on the 0-255 luminance scale.
const edgeThreshold = 30.0

func newFrame(img image.Image) *frame {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	f := &frame{
		w:   w,
		h:   h,
		lum: make([]float64, w*h),
		gx:  make([]float64, w*h),
		gy:  make([]float64, w*h),
		mag: make([]float64, w*h),
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			f.lum[y*w+x] = 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
		}
	}

	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := f.at(x+1, y-1) + 2*f.at(x+1, y) + f.at(x+1, y+1) -
				f.at(x-1, y-1) - 2*f.at(x-1, y) - f.at(x-1, y+1)
			gy := f.at(x-1, y+1) + 2*f.at(x, y+1) + f.at(x+1, y+1) -
				f.at(x-1, y-1) - 2*f.at(x, y-1) - f.at(x+1, y-1)
			i := y*w + x
			f.gx[i] = gx / 4
			f.gy[i] = gy / 4
			f.mag[i] = math.Hypot(f.gx[i], f.gy[i])
		}
	}
	return f
}

func (f *frame) at(x, y int) float64 {
	return f.lum[y*f.w+x]
}

func (f *frame) magAt(x, y int) float64 {
	return f.mag[y*f.w+x]
}

// bandWidth is the adaptive guide-line band half-width.
func (f *frame) bandWidth() int {
	b := min(f.w, f.h) / 50
	if b < 10 {
		b = 10
	}
	return b
}

// edgeDensityColumn is the fraction of edge pixels within the vertical band
// centered on column cx.
func (f *frame) edgeDensityColumn(cx, band int) float64 {
	x0, x1 := clampInt(cx-band, 0, f.w-1), clampInt(cx+band, 0, f.w-1)
	edges, total := 0, 0
	for y := 0; y < f.h; y++ {
		for x := x0; x <= x1; x++ {
			total++
			if f.magAt(x, y) > edgeThreshold {
				edges++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(edges) / float64(total)
}

// edgeDensityRow is the fraction of edge pixels within the horizontal band
// centered on row cy.
func (f *frame) edgeDensityRow(cy, band int) float64 {
	y0, y1 := clampInt(cy-band, 0, f.h-1), clampInt(cy+band, 0, f.h-1)
	edges, total := 0, 0
	for y := y0; y <= y1; y++ {
		for x := 0; x < f.w; x++ {
			total++
			if f.magAt(x, y) > edgeThreshold {
				edges++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(edges) / float64(total)
}

// regionStats returns mean luminance and edge density for the pixel
// rectangle [x0,x1) x [y0,y1).
func (f *frame) regionStats(x0, y0, x1, y1 int) (meanLum, edgeDensity float64) {
	var lumSum float64
	edges, total := 0, 0
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			lumSum += f.at(x, y)
			if f.magAt(x, y) > edgeThreshold {
				edges++
			}
			total++
		}
	}
	if total == 0 {
		return 0, 0
	}
	return lumSum / float64(total), float64(edges) / float64(total)
}

// localVariance computes the 3x3 neighborhood variance at (x, y).
func (f *frame) localVariance(x, y int) float64 {
	var sum, sqSum float64
	n := 0
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			nx, ny := x+dx, y+dy
			if nx < 0 || nx >= f.w || ny < 0 || ny >= f.h {
				continue
			}
			v := f.at(nx, ny)
			sum += v
			sqSum += v * v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	mean := sum / float64(n)
	return sqSum/float64(n) - mean*mean
}

// sharpness is the mean local variance over [y0,y1) rows.
func (f *frame) sharpness(y0, y1 int) float64 {
	var sum float64
	n := 0
	for y := y0; y < y1; y++ {
		for x := 0; x < f.w; x++ {
			sum += f.localVariance(x, y)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
