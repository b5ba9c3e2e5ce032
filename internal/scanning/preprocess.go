package scanning

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// minOCRWidth is the narrowest image tesseract reads reliably
const minOCRWidth = 800

// preprocessForOCR upscales, grayscales, denoises and binarizes a receipt photo
func preprocessForOCR(img image.Image) *image.NRGBA {
	if img.Bounds().Dx() < minOCRWidth {
		img = imaging.Resize(img, minOCRWidth, 0, imaging.Lanczos)
	}

	gray := imaging.Grayscale(img)
	gray = imaging.Blur(gray, 0.6)
	gray = imaging.AdjustContrast(gray, 25)
	gray = imaging.Sharpen(gray, 1.0)

	t := otsuThreshold(imaging.Histogram(gray))
	return imaging.AdjustFunc(gray, func(c color.NRGBA) color.NRGBA {
		if c.R > t {
			return color.NRGBA{R: 255, G: 255, B: 255, A: c.A}
		}
		return color.NRGBA{A: c.A}
	})
}

// otsuThreshold picks the gray level that best separates ink from paper.
// hist is a normalized 256-bin luminance histogram.
func otsuThreshold(hist [256]float64) uint8 {
	var total float64
	for i, p := range hist {
		total += float64(i) * p
	}

	var (
		best     uint8
		bestVar  float64
		weightBg float64
		sumBg    float64
	)
	for i, p := range hist {
		weightBg += p
		if weightBg == 0 {
			continue
		}
		weightFg := 1 - weightBg
		if weightFg <= 0 {
			break
		}
		sumBg += float64(i) * p
		meanBg := sumBg / weightBg
		meanFg := (total - sumBg) / weightFg
		between := weightBg * weightFg * (meanBg - meanFg) * (meanBg - meanFg)
		if between > bestVar {
			bestVar = between
			best = uint8(i)
		}
	}
	return best
}
