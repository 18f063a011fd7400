package bitmap

import (
	"image"
	"image/color"
	"testing"
)

// checkerboard builds a synthetic gray image so the dither functions have
// something with both dark and light regions to act on, without depending
// on an external sample image.
func checkerboard(w, h int) image.Image {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x/8+y/8)%2 == 0 {
				img.Set(x, y, color.Gray{Y: 20})
			} else {
				img.Set(x, y, color.Gray{Y: 230})
			}
		}
	}
	return img
}

func TestDitherFunctionsProduceBounds(t *testing.T) {
	src := checkerboard(64, 32)
	fns := map[string]DitherFunc{
		"floyd-steinberg": DFloydSteinberg,
		"atkinson":        DAtkinson,
		"stucki":          DStucki,
		"bayer":           DBayer,
		"no-dither":       DitherThresholdFn(DefaultThreshold),
		"default":         DitherDefault,
	}
	for name, fn := range fns {
		t.Run(name, func(t *testing.T) {
			out := fn(src, DefaultGamma)
			if out == nil {
				t.Fatalf("%s: returned nil image", name)
			}
			if out.Bounds().Dx() != src.Bounds().Dx() || out.Bounds().Dy() != src.Bounds().Dy() {
				t.Fatalf("%s: bounds = %v, want %v", name, out.Bounds(), src.Bounds())
			}
		})
	}
}

func TestDitherFunctionLookup(t *testing.T) {
	fn, ok := DitherFunction("")
	if !ok || fn == nil {
		t.Fatal("DitherFunction(\"\") should resolve to the default")
	}
	if _, ok := DitherFunction("stucki"); !ok {
		t.Fatal("DitherFunction(\"stucki\") should be registered")
	}
	if _, ok := DitherFunction("not-a-real-dither"); ok {
		t.Fatal("DitherFunction should reject unknown names")
	}
}

func TestAllDitherFunctionsSorted(t *testing.T) {
	names := AllDitherFunctions()
	for i := 1; i < len(names); i++ {
		if names[i-1] > names[i] {
			t.Fatalf("AllDitherFunctions() not sorted: %v", names)
		}
	}
}

func TestDitherThresholdFnKeepsBounds(t *testing.T) {
	fn := DitherThresholdFn(128)
	src := checkerboard(16, 16)
	out := fn(src, DefaultGamma)
	if out.Bounds() != src.Bounds() {
		t.Fatalf("bounds mismatch: %v vs %v", out.Bounds(), src.Bounds())
	}
}
