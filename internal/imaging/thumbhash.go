package imaging

import (
	"errors"
	"image"
	"math"

	"github.com/galdor/go-thumbhash"
)

// ThumbMaxDimension is the longest side of the image fed to the
// placeholder hash.
const ThumbMaxDimension = 50

// Hash returns the ThumbHash of img, computed on a copy scaled down so
// neither side exceeds ThumbMaxDimension.
func (c *Codecs) Hash(img *image.NRGBA) ([]byte, error) {
	small, err := c.thumbSource(img)
	if err != nil {
		return nil, err
	}

	hash := thumbhash.EncodeImage(small)
	if len(hash) == 0 {
		return nil, errors.New("empty thumbhash")
	}
	return hash, nil
}

func (c *Codecs) thumbSource(img *image.NRGBA) (*image.NRGBA, error) {
	size := Size(img)
	target, scaled := thumbSize(size)
	if !scaled {
		return img, nil
	}
	return c.Resample(img, target.Width, target.Height, FitStretch)
}

// thumbSize scales size so its longest side is ThumbMaxDimension. The
// boolean is false when size already fits.
func thumbSize(size Dimensions) (Dimensions, bool) {
	if size.Width <= ThumbMaxDimension && size.Height <= ThumbMaxDimension {
		return size, false
	}

	scale := float64(max(size.Width, size.Height)) / ThumbMaxDimension
	return Dimensions{
		Width:  max(1, int(math.Round(float64(size.Width)/scale))),
		Height: max(1, int(math.Round(float64(size.Height)/scale))),
	}, true
}
