package imaging

import "math"

// AspectTolerance is the relative aspect ratio difference below which a
// stretch is treated as equivalent to a crop.
const AspectTolerance = 0.01

// Fit is the resample strategy.
type Fit uint8

const (
	// FitStretch scales straight to the target box, ignoring aspect ratio.
	FitStretch Fit = iota
	// FitCrop center-crops the source to the target aspect ratio, then scales.
	FitCrop
)

func (f Fit) String() string {
	if f == FitCrop {
		return "crop"
	}
	return "stretch"
}

// ShouldCropToFill reports whether resizing source to targetWidth x
// targetHeight should crop to the target aspect ratio instead of
// stretching.
func ShouldCropToFill(source Dimensions, targetWidth, targetHeight int) bool {
	sourceAspect := float64(source.Width) / float64(source.Height)
	targetAspect := float64(targetWidth) / float64(targetHeight)
	if !finite(sourceAspect) || !finite(targetAspect) {
		return false
	}

	if math.Abs(sourceAspect-targetAspect)/sourceAspect <= AspectTolerance {
		return false
	}

	if targetAspect > sourceAspect {
		cropHeight := float64(source.Width) / targetAspect
		return cropHeight >= 1
	}
	cropWidth := float64(source.Height) * targetAspect
	return cropWidth >= 1
}

// FitFor returns the strategy for resizing source to target.
func FitFor(source, target Dimensions) Fit {
	if ShouldCropToFill(source, target.Width, target.Height) {
		return FitCrop
	}
	return FitStretch
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
