package ocr

import (
	"fmt"
	"image"
	"image/color"
	"log"
	"math"

	"github.com/disintegration/imaging"
)

const (
	// Horizontal opening kernel length and iteration count used to detect
	// ruled lines; runs shorter than (kernel-1)*iterations+1 pixels survive.
	ruledLineKernel     = 50
	ruledLineIterations = 2

	skewMaxAngle    = 10.0
	skewStep        = 0.25
	skewSampleWidth = 800
)

var white = color.NRGBA{255, 255, 255, 255}

// Preprocessor loads scanned pages and erases ruled lines. The zero value
// deskews every page it loads.
type Preprocessor struct {
	SkipDeskew bool
	Verbose    bool
}

// Load opens path and returns a deskewed grayscale page.
func (p Preprocessor) Load(path string) (*image.NRGBA, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	if !p.SkipDeskew {
		var angle float64
		img, angle = Deskew(img)
		if p.Verbose {
			log.Printf("PREPROC %s skew=%.2f", path, angle)
		}
	}
	return imaging.Grayscale(img), nil
}

// RemoveRuledLines implements the line-removal pass for a loaded page or crop.
func (p Preprocessor) RemoveRuledLines(img image.Image) *image.NRGBA {
	return RemoveRuledLines(img)
}

// LoadAndPreprocess is Preprocessor{}.Load.
func LoadAndPreprocess(path string) (*image.NRGBA, error) {
	return Preprocessor{}.Load(path)
}

// grayLevels returns the luminance of every pixel in row-major order.
func grayLevels(img image.Image) ([]uint8, int, int) {
	g := imaging.Grayscale(img)
	w, h := g.Bounds().Dx(), g.Bounds().Dy()
	out := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		row := g.Pix[y*g.Stride:]
		for x := 0; x < w; x++ {
			out[y*w+x] = row[x*4]
		}
	}
	return out, w, h
}

// otsuThreshold picks the gray level that maximises between-class variance.
// Pixels at or below the returned level are ink.
func otsuThreshold(levels []uint8) uint8 {
	var hist [256]int
	for _, v := range levels {
		hist[v]++
	}
	total := len(levels)
	sum := 0
	for i, c := range hist {
		sum += i * c
	}
	var sumB, wB, t int
	best := 0.0
	for i := 0; i < 256; i++ {
		wB += hist[i]
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += i * hist[i]
		mB := float64(sumB) / float64(wB)
		mF := float64(sum-sumB) / float64(wF)
		between := float64(wB) * float64(wF) * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			t = i
		}
	}
	return uint8(t)
}

// Binarize thresholds img with Otsu's method into black ink on white.
func Binarize(img image.Image) *image.NRGBA {
	levels, w, h := grayLevels(img)
	out := imaging.New(w, h, white)
	t := otsuThreshold(levels)
	for i, v := range levels {
		if v <= t {
			out.SetNRGBA(i%w, i/w, color.NRGBA{0, 0, 0, 255})
		}
	}
	return out
}

// RemoveRuledLines binarizes img and erases long horizontal ink runs together
// with a one pixel band around them. The result is black ink on white.
func RemoveRuledLines(img image.Image) *image.NRGBA {
	levels, w, h := grayLevels(img)
	out := imaging.New(w, h, white)
	if w == 0 || h == 0 {
		return out
	}
	t := otsuThreshold(levels)
	ink := make([]bool, w*h)
	for i, v := range levels {
		ink[i] = v <= t
	}
	minRun := (ruledLineKernel-1)*ruledLineIterations + 1
	erase := make([]bool, w*h)
	for y := 0; y < h; y++ {
		x := 0
		for x < w {
			if !ink[y*w+x] {
				x++
				continue
			}
			start := x
			for x < w && ink[y*w+x] {
				x++
			}
			if x-start >= minRun {
				markBand(erase, w, h, start-1, x, y-1, y+1)
			}
		}
	}
	for i := range ink {
		if ink[i] && !erase[i] {
			out.SetNRGBA(i%w, i/w, color.NRGBA{0, 0, 0, 255})
		}
	}
	return out
}

// markBand flags every pixel in [x0,x1]x[y0,y1] clipped to the image.
func markBand(mask []bool, w, h, x0, x1, y0, y1 int) {
	x0, y0 = max(x0, 0), max(y0, 0)
	x1, y1 = min(x1, w-1), min(y1, h-1)
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			mask[y*w+x] = true
		}
	}
}

// EstimateSkew returns the angle in degrees of the dominant text lines, positive
// when lines descend to the right. It searches ±10° for the projection with the
// sharpest row profile.
func EstimateSkew(img image.Image) float64 {
	src := img
	if img.Bounds().Dx() > skewSampleWidth {
		src = imaging.Resize(img, skewSampleWidth, 0, imaging.Box)
	}
	levels, w, h := grayLevels(src)
	t := otsuThreshold(levels)
	type point struct{ x, y float64 }
	var pts []point
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if levels[y*w+x] <= t {
				pts = append(pts, point{float64(x), float64(y)})
			}
		}
	}
	if len(pts) == 0 || len(pts) == w*h {
		return 0
	}
	diag := int(math.Hypot(float64(w), float64(h))) + 2
	bins := make([]int, 2*diag+1)
	steps := int(skewMaxAngle / skewStep)
	best, bestScore := 0.0, -1.0
	for i := -steps; i <= steps; i++ {
		angle := float64(i) * skewStep
		sin, cos := math.Sincos(angle * math.Pi / 180)
		clear(bins)
		for _, p := range pts {
			bins[int(math.Round(p.y*cos-p.x*sin))+diag]++
		}
		score := 0.0
		for _, c := range bins {
			score += float64(c) * float64(c)
		}
		if score > bestScore || (score == bestScore && math.Abs(angle) < math.Abs(best)) {
			best, bestScore = angle, score
		}
	}
	return best
}

// Deskew rotates img so its text lines are horizontal, keeping the original size.
func Deskew(img image.Image) (*image.NRGBA, float64) {
	angle := EstimateSkew(img)
	if math.Abs(angle) < skewStep/2 {
		return imaging.Clone(img), 0
	}
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	rot := imaging.Rotate(img, angle, white)
	return imaging.CropCenter(rot, w, h), angle
}
