package imaging

import (
	"errors"
	"image"
	"math"
)

// ErrInvalidDimensions is returned when a request names neither a usable
// width nor a usable height.
var ErrInvalidDimensions = errors.New("either width or height must be provided and greater than zero")

// Dimensions is a concrete width and height in pixels.
type Dimensions struct {
	Width  int
	Height int
}

// Size returns the dimensions of img.
func Size(img image.Image) Dimensions {
	b := img.Bounds()
	return Dimensions{Width: b.Dx(), Height: b.Dy()}
}

// DimensionRequest is the client's partial resize intent. Nil means the
// axis was not given.
type DimensionRequest struct {
	Width  *float64
	Height *float64
}

// Empty reports whether neither axis was given.
func (r DimensionRequest) Empty() bool {
	return r.Width == nil && r.Height == nil
}

// Resolve computes target dimensions for original. When only one axis is
// requested the other follows the original aspect ratio; when both are
// requested they are used as given. Results are rounded half away from
// zero and never smaller than 1.
func Resolve(original Dimensions, req DimensionRequest) (Dimensions, error) {
	w, hasWidth := positive(req.Width)
	h, hasHeight := positive(req.Height)

	switch {
	case hasWidth && hasHeight:
		return Dimensions{Width: roundPixels(w), Height: roundPixels(h)}, nil
	case !hasWidth && !hasHeight:
		return Dimensions{}, ErrInvalidDimensions
	}

	aspect := float64(original.Width) / float64(original.Height)
	if hasWidth {
		return Dimensions{Width: roundPixels(w), Height: roundPixels(w / aspect)}, nil
	}
	return Dimensions{Width: roundPixels(h * aspect), Height: roundPixels(h)}, nil
}

func positive(v *float64) (float64, bool) {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) || *v <= 0 {
		return 0, false
	}
	return *v, true
}

func roundPixels(v float64) int {
	r := math.Round(v)
	if math.IsNaN(r) || r < 1 {
		return 1
	}
	if r > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(r)
}
