package meshwarp

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/exp/constraints"
)

// ImgToNRGBA converts any image type to a tightly packed *image.NRGBA with
// min-point at (0, 0).
func ImgToNRGBA(img image.Image) *image.NRGBA {
	srcBounds := img.Bounds()
	if srcBounds.Min.X == 0 && srcBounds.Min.Y == 0 {
		if src0, ok := img.(*image.NRGBA); ok && src0.Stride == 4*srcBounds.Dx() {
			return src0
		}
	}
	srcMinX := srcBounds.Min.X
	srcMinY := srcBounds.Min.Y

	dstBounds := srcBounds.Sub(srcBounds.Min)
	dstW := dstBounds.Dx()
	dstH := dstBounds.Dy()
	dst := image.NewNRGBA(dstBounds)

	switch src := img.(type) {
	case *image.NRGBA:
		rowSize := srcBounds.Dx() * 4
		for dstY := 0; dstY < dstH; dstY++ {
			di := dst.PixOffset(0, dstY)
			si := src.PixOffset(srcMinX, srcMinY+dstY)
			copy(dst.Pix[di:di+rowSize], src.Pix[si:si+rowSize])
		}
	case *image.YCbCr:
		for dstY := 0; dstY < dstH; dstY++ {
			di := dst.PixOffset(0, dstY)
			for dstX := 0; dstX < dstW; dstX++ {
				srcX := srcMinX + dstX
				srcY := srcMinY + dstY
				siy := src.YOffset(srcX, srcY)
				sic := src.COffset(srcX, srcY)
				r, g, b := color.YCbCrToRGB(src.Y[siy], src.Cb[sic], src.Cr[sic])
				dst.Pix[di+0] = r
				dst.Pix[di+1] = g
				dst.Pix[di+2] = b
				dst.Pix[di+3] = 0xff
				di += 4
			}
		}
	default:
		for dstY := 0; dstY < dstH; dstY++ {
			di := dst.PixOffset(0, dstY)
			for dstX := 0; dstX < dstW; dstX++ {
				c := color.NRGBAModel.Convert(img.At(srcMinX+dstX, srcMinY+dstY)).(color.NRGBA)
				dst.Pix[di+0] = c.R
				dst.Pix[di+1] = c.G
				dst.Pix[di+2] = c.B
				dst.Pix[di+3] = c.A
				di += 4
			}
		}
	}

	return dst
}

// cloneNRGBA returns a deep, tightly packed copy of src.
func cloneNRGBA(src *image.NRGBA) *image.NRGBA {
	b := src.Bounds()
	dst := image.NewNRGBA(b)
	rowSize := b.Dx() * 4
	for y := b.Min.Y; y < b.Max.Y; y++ {
		di := dst.PixOffset(b.Min.X, y)
		si := src.PixOffset(b.Min.X, y)
		copy(dst.Pix[di:di+rowSize], src.Pix[si:si+rowSize])
	}
	return dst
}

// alphaMask thresholds the alpha channel: a pixel is opaque when its alpha
// is strictly greater than threshold.
func alphaMask(img *image.NRGBA, threshold uint8) []bool {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	mask := make([]bool, w*h)
	for y := 0; y < h; y++ {
		si := img.PixOffset(0, y)
		for x := 0; x < w; x++ {
			mask[y*w+x] = img.Pix[si+3] > threshold
			si += 4
		}
	}
	return mask
}

// sampleBilinear returns the bilinear interpolation of src at the
// fractional coordinate (fx, fy). Neighbours falling outside the image
// contribute transparent black.
func sampleBilinear(src *image.NRGBA, fx, fy float64) [4]uint8 {
	var out [4]uint8
	if math.IsNaN(fx) || math.IsNaN(fy) {
		return out
	}
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	x0 := int(math.Floor(fx))
	y0 := int(math.Floor(fy))
	tx := fx - float64(x0)
	ty := fy - float64(y0)

	var acc [4]float64
	weights := [4]float64{(1 - tx) * (1 - ty), tx * (1 - ty), (1 - tx) * ty, tx * ty}
	offsets := [4][2]int{{0, 0}, {1, 0}, {0, 1}, {1, 1}}
	for k, o := range offsets {
		wk := weights[k]
		if wk == 0 {
			continue
		}
		x, y := x0+o[0], y0+o[1]
		if x < 0 || y < 0 || x >= w || y >= h {
			continue
		}
		i := src.PixOffset(x, y)
		for c := 0; c < 4; c++ {
			acc[c] += wk * float64(src.Pix[i+c])
		}
	}
	for c := 0; c < 4; c++ {
		out[c] = uint8(Clamp(math.Round(acc[c]), 0, 255))
	}
	return out
}

// Min returns the smallest value between two numbers.
func Min[T constraints.Ordered](values ...T) T {
	var acc T = values[0]

	for _, v := range values {
		if v < acc {
			acc = v
		}
	}
	return acc
}

// Max returns the biggest value between two numbers.
func Max[T constraints.Ordered](values ...T) T {
	var acc T = values[0]

	for _, v := range values {
		if v > acc {
			acc = v
		}
	}
	return acc
}

// Clamp restricts v to the closed interval [lo, hi].
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
