package classifier

import (
	"image"
	_ "image/jpeg" // register decoders
	_ "image/png"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"

	"github.com/tphakala/pneumodetect/internal/conf"
	"github.com/tphakala/pneumodetect/internal/errors"
)

// Decode opens a JPEG or PNG image, applying any EXIF orientation.
func Decode(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.New(ErrCorruptImage).
			Component("classifier").
			Category(errors.CategoryValidation).
			Context("cause", err.Error()).
			Build()
	}
	return img, nil
}

// Preprocess resizes img to size x size with bilinear interpolation and
// returns RGB values scaled to [0,1] as a batch of one, laid out as NHWC
// (1, size, size, 3) or NCHW (1, 3, size, size). Grayscale input is
// replicated across the three channels and alpha is discarded.
func Preprocess(img image.Image, size int, layout string) []float32 {
	resized := resize.Resize(uint(size), uint(size), opaque(img), resize.Bilinear) //nolint:gosec // G115: size validated positive by conf
	bounds := resized.Bounds()

	plane := size * size
	out := make([]float32, 3*plane)
	for y := range size {
		for x := range size {
			r32, g32, b32, _ := resized.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			r := float32(r32>>8) / 255.0
			g := float32(g32>>8) / 255.0
			b := float32(b32>>8) / 255.0

			if layout == conf.LayoutNCHW {
				i := y*size + x
				out[i] = r
				out[plane+i] = g
				out[2*plane+i] = b
				continue
			}
			base := (y*size + x) * 3
			out[base] = r
			out[base+1] = g
			out[base+2] = b
		}
	}
	return out
}

// opaque returns img as non-premultiplied RGBA with every alpha set to
// fully opaque, so transparent pixels keep their stored colour.
func opaque(img image.Image) *image.NRGBA {
	nrgba := imaging.Clone(img)
	for i := 3; i < len(nrgba.Pix); i += 4 {
		nrgba.Pix[i] = 0xff
	}
	return nrgba
}
