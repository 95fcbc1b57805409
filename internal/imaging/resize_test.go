package imaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShouldCropToFill(t *testing.T) {
	source := Dimensions{Width: 1000, Height: 500}

	tests := []struct {
		name   string
		source Dimensions
		w, h   int
		want   bool
	}{
		{"identical dimensions", source, 1000, 500, false},
		{"same aspect smaller", source, 100, 50, false},
		{"within tolerance", source, 1000, 503, false},
		{"square target from wide source", source, 100, 100, true},
		{"wider target", source, 300, 100, true},
		{"taller target", Dimensions{Width: 500, Height: 1000}, 100, 100, true},
		{"zero target height", source, 100, 0, false},
		{"zero source height", Dimensions{Width: 100, Height: 0}, 100, 100, false},
		{"crop height below one pixel", Dimensions{Width: 2, Height: 1}, 300, 1, false},
		{"crop width below one pixel", Dimensions{Width: 1, Height: 2}, 1, 300, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldCropToFill(tt.source, tt.w, tt.h))
		})
	}
}

func TestFitFor(t *testing.T) {
	source := Dimensions{Width: 1000, Height: 500}
	assert.Equal(t, FitCrop, FitFor(source, Dimensions{100, 100}))
	assert.Equal(t, FitStretch, FitFor(source, Dimensions{200, 100}))
	assert.Equal(t, "crop", FitCrop.String())
	assert.Equal(t, "stretch", FitStretch.String())
}
