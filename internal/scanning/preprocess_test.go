package scanning

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("preprocessForOCR", func() {
	When("the image is narrow", func() {
		It("should upscale it to the minimum width", func() {
			out := preprocessForOCR(testImage(200, 300))
			Expect(out.Bounds().Dx()).To(Equal(minOCRWidth))
			Expect(out.Bounds().Dy()).To(Equal(1200))
		})
	})

	When("the image is wide enough", func() {
		It("should keep its size", func() {
			out := preprocessForOCR(testImage(900, 100))
			Expect(out.Bounds().Dx()).To(Equal(900))
			Expect(out.Bounds().Dy()).To(Equal(100))
		})
	})

	It("should produce only black and white pixels", func() {
		out := preprocessForOCR(testImage(800, 60))
		for y := 0; y < out.Bounds().Dy(); y += 7 {
			for x := 0; x < out.Bounds().Dx(); x += 31 {
				c := out.NRGBAAt(x, y)
				Expect(c.R).To(BeElementOf(uint8(0), uint8(255)))
				Expect(c.G).To(Equal(c.R))
			}
		}
	})

	It("should keep paper white and ink black", func() {
		out := preprocessForOCR(testImage(800, 60))
		Expect(out.NRGBAAt(400, 2).R).To(Equal(uint8(255)))
		Expect(out.NRGBAAt(400, 25).R).To(Equal(uint8(0)))
	})
})

var _ = Describe("otsuThreshold", func() {
	It("should separate a bimodal histogram", func() {
		var hist [256]float64
		hist[20] = 0.5
		hist[220] = 0.5
		t := otsuThreshold(hist)
		Expect(t).To(BeNumerically(">=", 20))
		Expect(t).To(BeNumerically("<", 220))
	})

	It("should be zero for an empty histogram", func() {
		Expect(otsuThreshold([256]float64{})).To(Equal(uint8(0)))
	})
})
