// Package visualization renders stacks of complex frames (detector data,
// object and probe gradients) as grayscale images.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"math/cmplx"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/floats"
)

// Mode selects the real quantity drawn for each complex sample.
type Mode int

const (
	// LogIntensity draws log(1+|z|²), the usual far-field view.
	LogIntensity Mode = iota
	// Magnitude draws |z|.
	Magnitude
	// Phase draws arg z over the fixed range [-π, π].
	Phase
)

func (m Mode) String() string {
	switch m {
	case LogIntensity:
		return "logintensity"
	case Magnitude:
		return "magnitude"
	case Phase:
		return "phase"
	default:
		return "unknown"
	}
}

// Viewer exposes a row-major stack of rows×cols complex frames.
type Viewer struct {
	frames []complex64
	rows   int
	cols   int
	count  int
}

// NewViewer wraps frames, which must hold count frames of rows×cols samples.
func NewViewer(frames []complex64, rows, cols, count int) (*Viewer, error) {
	if rows <= 0 || cols <= 0 || count <= 0 {
		return nil, fmt.Errorf("frame dimensions must be positive, got %dx%d x%d", rows, cols, count)
	}
	if len(frames) != rows*cols*count {
		return nil, fmt.Errorf("expected %d samples for %d frames of %dx%d, got %d", rows*cols*count, count, rows, cols, len(frames))
	}
	return &Viewer{frames: frames, rows: rows, cols: cols, count: count}, nil
}

// Count returns the number of frames.
func (v *Viewer) Count() int { return v.count }

// Values returns the real rendering of one frame in row-major order.
func (v *Viewer) Values(index int, mode Mode) ([]float64, error) {
	if index < 0 || index >= v.count {
		return nil, fmt.Errorf("frame %d out of range [0,%d)", index, v.count)
	}

	size := v.rows * v.cols
	frame := v.frames[index*size : (index+1)*size]
	out := make([]float64, size)
	for i, z := range frame {
		c := complex128(z)
		switch mode {
		case LogIntensity:
			a := cmplx.Abs(c)
			out[i] = math.Log1p(a * a)
		case Magnitude:
			out[i] = cmplx.Abs(c)
		case Phase:
			out[i] = cmplx.Phase(c)
		default:
			return nil, fmt.Errorf("invalid mode: %d", mode)
		}
	}
	return out, nil
}

// ExtractFrame renders one frame to a 16-bit grayscale image. Intensity and
// magnitude are stretched to the frame's own min/max; phase uses [-π, π].
func (v *Viewer) ExtractFrame(index int, mode Mode) (image.Image, error) {
	values, err := v.Values(index, mode)
	if err != nil {
		return nil, err
	}

	lo, hi := -math.Pi, math.Pi
	if mode != Phase {
		lo, hi = floats.Min(values), floats.Max(values)
	}
	span := hi - lo

	img := image.NewGray16(image.Rect(0, 0, v.cols, v.rows))
	for r := 0; r < v.rows; r++ {
		for c := 0; c < v.cols; c++ {
			var t float64
			if span > 0 {
				t = (values[r*v.cols+c] - lo) / span
			}
			value := uint16(math.Max(0, math.Min(65535, t*65535)))
			img.SetGray16(c, r, color.Gray16{Y: value})
		}
	}
	return img, nil
}

// SaveFrame saves an extracted frame as a PNG image
func (v *Viewer) SaveFrame(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return png.Encode(file, img)
}

// SaveFrameSequence renders and saves every frame to outputDir as
// <prefix>_<mode>_NNNN.png.
func (v *Viewer) SaveFrameSequence(mode Mode, outputDir, prefix string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	for i := 0; i < v.count; i++ {
		img, err := v.ExtractFrame(i, mode)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("%s_%s_%04d.png", prefix, mode, i))
		if err := v.SaveFrame(img, filename); err != nil {
			return err
		}
	}

	return nil
}
