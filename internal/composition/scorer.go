package composition

import (
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"math"
	"os"
	"sort"
)

const (
	maxCornerPoints   = 10
	maxGradientPoints = 5
	maxInterestPoints = 15
	dedupeDistance    = 0.05

	// expectedMaxLines normalizes the leading-lines sum: five strong
	// center-pointing segments saturate the score.
	expectedMaxLines = 5.0
)

// Scorer computes composition metrics for single frames.
type Scorer struct {
	logger *slog.Logger
}

func NewScorer(logger *slog.Logger) *Scorer {
	return &Scorer{logger: logger}
}

// ScoreFile decodes the image at path and scores it. An unreadable or
// undecodable file yields zero metrics with the "unknown" archetype; this
// path never returns an error.
func (s *Scorer) ScoreFile(path string) Metrics {
	file, err := os.Open(path)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("frame open failed, reporting unknown composition", "path", path, "error", err)
		}
		return Zero()
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("frame decode failed, reporting unknown composition", "path", path, "error", err)
		}
		return Zero()
	}
	return s.ScoreImage(img)
}

// ScoreImage scores one decoded frame.
func (s *Scorer) ScoreImage(img image.Image) Metrics {
	if img == nil {
		return Zero()
	}
	bounds := img.Bounds()
	if bounds.Dx() < 3 || bounds.Dy() < 3 {
		return Zero()
	}

	f := newFrame(img)
	points := interestPoints(f)

	m := Metrics{
		RuleOfThirds:   guideLineScore(f, points, 1.0/3.0, 2.0/3.0),
		GoldenRatio:    guideLineScore(f, points, 0.382, 0.618),
		Symmetry:       symmetryScore(f),
		Balance:        balanceScore(f),
		LeadingLines:   leadingLinesScore(f),
		Depth:          depthScore(f),
		FocusClarity:   focusClarityScore(f),
		VisualWeight:   visualWeight(f),
		InterestPoints: points,
	}
	m.Archetype = classifyArchetype(m)
	return m
}

// guideLineScore combines edge density along two vertical and two
// horizontal guide lines (60%) with an interest-point proximity bonus at
// the four intersections (40%), doubled and capped at 1.
func guideLineScore(f *frame, points []Point, a, b float64) float64 {
	band := f.bandWidth()
	xs := []int{int(float64(f.w) * a), int(float64(f.w) * b)}
	ys := []int{int(float64(f.h) * a), int(float64(f.h) * b)}

	lineScore := (f.edgeDensityColumn(xs[0], band) + f.edgeDensityColumn(xs[1], band) +
		f.edgeDensityRow(ys[0], band) + f.edgeDensityRow(ys[1], band)) / 4

	bonus := 0.0
	reach := float64(2 * band)
	for _, px := range xs {
		for _, py := range ys {
			for _, p := range points {
				dx := p.X*float64(f.w) - float64(px)
				dy := p.Y*float64(f.h) - float64(py)
				if math.Hypot(dx, dy) <= reach {
					bonus += 0.25
					break
				}
			}
		}
	}
	if bonus > 1 {
		bonus = 1
	}

	return clamp01((0.6*lineScore + 0.4*bonus) * 2)
}

// symmetryScore compares each half against its mirror and keeps the better
// of the vertical and horizontal axes.
func symmetryScore(f *frame) float64 {
	var vDiff float64
	vCount := 0
	for y := 0; y < f.h; y++ {
		for x := 0; x < f.w/2; x++ {
			vDiff += math.Abs(f.at(x, y) - f.at(f.w-1-x, y))
			vCount++
		}
	}
	var hDiff float64
	hCount := 0
	for y := 0; y < f.h/2; y++ {
		for x := 0; x < f.w; x++ {
			hDiff += math.Abs(f.at(x, y) - f.at(x, f.h-1-y))
			hCount++
		}
	}
	vertical, horizontal := 1.0, 1.0
	if vCount > 0 {
		vertical = 1 - (vDiff/float64(vCount))/255.0
	}
	if hCount > 0 {
		horizontal = 1 - (hDiff/float64(hCount))/255.0
	}
	return clamp01(math.Max(vertical, horizontal))
}

// balanceScore measures brightness distribution across the four quadrants:
// the mean of diagonal-pair and axis-pair balance.
func balanceScore(f *frame) float64 {
	mx, my := f.w/2, f.h/2
	tl, _ := f.regionStats(0, 0, mx, my)
	tr, _ := f.regionStats(mx, 0, f.w, my)
	bl, _ := f.regionStats(0, my, mx, f.h)
	br, _ := f.regionStats(mx, my, f.w, f.h)

	total := tl + tr + bl + br
	if total == 0 {
		return 1
	}
	leftRight := 1 - math.Abs((tl+bl)-(tr+br))/total
	topBottom := 1 - math.Abs((tl+tr)-(bl+br))/total
	diagonal := 1 - math.Abs((tl+br)-(tr+bl))/total

	axis := (leftRight + topBottom) / 2
	return clamp01((diagonal + axis) / 2)
}

// leadingLinesScore walks segments from border points toward the image
// center and counts the ones that run along a sustained edge. Each detected
// line scores length/(w+h); the sum is normalized by an expected maximum of
// five lines.
func leadingLinesScore(f *frame) float64 {
	cx, cy := float64(f.w)/2, float64(f.h)/2
	minLen := 0.25 * float64(min(f.w, f.h))
	step := min(f.w, f.h) / 32
	if step < 8 {
		step = 8
	}

	var sum float64
	for _, p := range borderPoints(f.w, f.h, step) {
		dx, dy := cx-float64(p.x), cy-float64(p.y)
		dist := math.Hypot(dx, dy)
		if dist < minLen {
			continue
		}
		dx /= dist
		dy /= dist

		hits, total := 0, 0
		for t := 0.0; t < dist; t++ {
			x, y := int(float64(p.x)+dx*t), int(float64(p.y)+dy*t)
			if x < 0 || x >= f.w || y < 0 || y >= f.h {
				break
			}
			total++
			if f.magAt(x, y) > edgeThreshold {
				hits++
			}
		}
		if total == 0 {
			continue
		}
		if float64(hits)/float64(total) >= 0.6 {
			sum += dist / float64(f.w+f.h)
		}
	}
	return clamp01(sum / expectedMaxLines)
}

type gridPoint struct {
	x, y int
}

func borderPoints(w, h, step int) []gridPoint {
	var pts []gridPoint
	for x := 0; x < w; x += step {
		pts = append(pts, gridPoint{x, 0}, gridPoint{x, h - 1})
	}
	for y := step; y < h-1; y += step {
		pts = append(pts, gridPoint{0, y}, gridPoint{w - 1, y})
	}
	return pts
}

// depthScore splits the frame into five horizontal bands and rewards
// decreasing sharpness and band-to-band brightness change, both cues of
// depth layering.
func depthScore(f *frame) float64 {
	const bands = 5
	bandH := f.h / bands
	if bandH == 0 {
		return 0
	}

	sharp := make([]float64, bands)
	bright := make([]float64, bands)
	for i := 0; i < bands; i++ {
		y0 := i * bandH
		y1 := y0 + bandH
		if i == bands-1 {
			y1 = f.h
		}
		sharp[i] = f.sharpness(y0, y1)
		bright[i], _ = f.regionStats(0, y0, f.w, y1)
	}

	cues := 0
	for i := 1; i < bands; i++ {
		if sharp[i] < sharp[i-1] {
			cues++
		}
		if math.Abs(bright[i]-bright[i-1]) > 10 {
			cues++
		}
	}
	return float64(cues) / float64(2*(bands-1))
}

// focusClarityScore is normalized local-variance sharpness.
func focusClarityScore(f *frame) float64 {
	return clamp01(f.sharpness(0, f.h) / 200.0)
}

// visualWeight maps each 3x3 cell to 0.7*brightness + 0.3*edge density.
func visualWeight(f *frame) map[string]float64 {
	weights := make(map[string]float64, len(RegionNames))
	cellW, cellH := f.w/3, f.h/3
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			x0, y0 := col*cellW, row*cellH
			x1, y1 := x0+cellW, y0+cellH
			if col == 2 {
				x1 = f.w
			}
			if row == 2 {
				y1 = f.h
			}
			meanLum, edgeDensity := f.regionStats(x0, y0, x1, y1)
			weights[RegionNames[row*3+col]] = 0.7*(meanLum/255.0) + 0.3*edgeDensity
		}
	}
	return weights
}

type scoredPoint struct {
	x, y     int
	response float64
}

// interestPoints collects up to 10 corner features and up to 5 strong
// gradient points, deduplicated within 0.05 normalized distance, capped
// at 15 total.
func interestPoints(f *frame) []Point {
	corners := harrisCorners(f)
	if len(corners) > maxCornerPoints {
		corners = corners[:maxCornerPoints]
	}

	var points []Point
	for _, c := range corners {
		points = appendDeduped(points, f, c)
	}

	gradients := strongestGradients(f)
	added := 0
	for _, g := range gradients {
		before := len(points)
		points = appendDeduped(points, f, g)
		if len(points) > before {
			added++
		}
		if added >= maxGradientPoints {
			break
		}
	}

	if len(points) > maxInterestPoints {
		points = points[:maxInterestPoints]
	}
	return points
}

func appendDeduped(points []Point, f *frame, cand scoredPoint) []Point {
	p := Point{X: float64(cand.x) / float64(f.w), Y: float64(cand.y) / float64(f.h)}
	for _, q := range points {
		if math.Hypot(p.X-q.X, p.Y-q.Y) < dedupeDistance {
			return points
		}
	}
	return append(points, p)
}

// harrisCorners computes a Harris corner response over summed 3x3 gradient
// products and returns local maxima sorted by response.
func harrisCorners(f *frame) []scoredPoint {
	const k = 0.04
	response := make([]float64, f.w*f.h)
	for y := 1; y < f.h-1; y++ {
		for x := 1; x < f.w-1; x++ {
			var sxx, syy, sxy float64
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					i := (y+dy)*f.w + (x + dx)
					sxx += f.gx[i] * f.gx[i]
					syy += f.gy[i] * f.gy[i]
					sxy += f.gx[i] * f.gy[i]
				}
			}
			det := sxx*syy - sxy*sxy
			trace := sxx + syy
			response[y*f.w+x] = det - k*trace*trace
		}
	}

	var candidates []scoredPoint
	for y := 2; y < f.h-2; y++ {
		for x := 2; x < f.w-2; x++ {
			r := response[y*f.w+x]
			if r <= 1000 {
				continue
			}
			isMax := true
			for dy := -1; dy <= 1 && isMax; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if dx == 0 && dy == 0 {
						continue
					}
					if response[(y+dy)*f.w+(x+dx)] > r {
						isMax = false
						break
					}
				}
			}
			if isMax {
				candidates = append(candidates, scoredPoint{x: x, y: y, response: r})
			}
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].response > candidates[j].response
	})
	return candidates
}

func strongestGradients(f *frame) []scoredPoint {
	var candidates []scoredPoint
	for y := 1; y < f.h-1; y++ {
		for x := 1; x < f.w-1; x++ {
			if m := f.magAt(x, y); m > edgeThreshold*2 {
				candidates = append(candidates, scoredPoint{x: x, y: y, response: m})
			}
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].response > candidates[j].response
	})
	return candidates
}

// classifyArchetype picks the dominant composition pattern, with overrides
// for centered, diagonal, and asymmetrical frames.
func classifyArchetype(m Metrics) string {
	best := ArchetypeRuleOfThirds
	bestScore := m.RuleOfThirds
	if m.GoldenRatio > bestScore {
		best, bestScore = ArchetypeGoldenRatio, m.GoldenRatio
	}
	if m.Symmetry > bestScore {
		best, bestScore = ArchetypeSymmetrical, m.Symmetry
	}

	switch {
	case m.VisualWeight["center"] > 0.4:
		return ArchetypeCentered
	case m.LeadingLines > 0.5:
		return ArchetypeDiagonal
	case m.Balance > 0.7 && m.Symmetry < 0.3:
		return ArchetypeAsymmetrical
	}
	if bestScore < 0.3 {
		return ArchetypeUnstructured
	}
	return best
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
