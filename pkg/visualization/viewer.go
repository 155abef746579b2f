package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/tiff"
	"gonum.org/v1/gonum/mat"

	"hydroinvert/internal/models"
)

// Viewer renders one 2-D inversion map, such as a chlorophyll or CDOM
// concentration field, as a colour image.
type Viewer struct {
	data *mat.Dense

	rows int
	cols int
}

// NewViewer creates a viewer over data. The matrix is not copied.
func NewViewer(data *mat.Dense) *Viewer {
	r, c := data.Dims()
	return &Viewer{data: data, rows: r, cols: c}
}

// Range returns the minimum and maximum finite value of the map, or (0, 1)
// when there is none.
func (v *Viewer) Range() (vmin, vmax float64) {
	vmin, vmax = math.Inf(1), math.Inf(-1)
	for i := 0; i < v.rows; i++ {
		for j := 0; j < v.cols; j++ {
			x := v.data.At(i, j)
			if math.IsNaN(x) || math.IsInf(x, 0) {
				continue
			}
			vmin = math.Min(vmin, x)
			vmax = math.Max(vmax, x)
		}
	}
	if vmin > vmax {
		return 0, 1
	}
	return vmin, vmax
}

// Render maps values in [vmin, vmax] onto the jet colour scale. Values
// outside the range saturate; NaN and masked pixels are black. A nil mask
// keeps every pixel.
func (v *Viewer) Render(vmin, vmax float64, mask *models.Mask) (image.Image, error) {
	if !(vmax > vmin) {
		return nil, fmt.Errorf("invalid range [%g, %g]", vmin, vmax)
	}
	if mask != nil && (mask.Rows != v.rows || mask.Cols != v.cols) {
		return nil, fmt.Errorf("mask is %dx%d, map is %dx%d", mask.Rows, mask.Cols, v.rows, v.cols)
	}

	img := image.NewRGBA(image.Rect(0, 0, v.cols, v.rows))
	black := color.RGBA{A: 255}
	for y := 0; y < v.rows; y++ {
		for x := 0; x < v.cols; x++ {
			val := v.data.At(y, x)
			if math.IsNaN(val) || (mask != nil && !mask.Keep(y, x)) {
				img.SetRGBA(x, y, black)
				continue
			}
			img.SetRGBA(x, y, Jet((val-vmin)/(vmax-vmin)))
		}
	}
	return img, nil
}

// Jet returns the jet colour for t in [0, 1]; t is clamped.
func Jet(t float64) color.RGBA {
	t = math.Max(0, math.Min(1, t))
	channel := func(offset float64) uint8 {
		c := 1.5 - math.Abs(4*t-offset)
		return uint8(math.Round(255 * math.Max(0, math.Min(1, c))))
	}
	return color.RGBA{R: channel(3), G: channel(2), B: channel(1), A: 255}
}

// Scale enlarges img by an integer factor with nearest neighbour sampling so
// that small scenes stay readable. Factors below two return img unchanged.
func Scale(img image.Image, factor int) image.Image {
	if factor < 2 {
		return img
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx()*factor, b.Dy()*factor))
	xdraw.NearestNeighbor.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// SaveImage writes img in the format implied by the file extension: .png,
// .jpg/.jpeg or .tif/.tiff.
func SaveImage(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".png":
		return png.Encode(file, img)
	case ".jpg", ".jpeg":
		return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
	case ".tif", ".tiff":
		return tiff.Encode(file, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return fmt.Errorf("unsupported image format: %q (must be .png, .jpg or .tif)", ext)
	}
}

// SaveMaps renders every parameter map of maps into dir as <name>.<format>.
// ranges fixes the colour range of a parameter; missing entries use the
// finite data range. It returns the written paths.
func SaveMaps(dir string, maps *models.Maps, ranges map[string][2]float64, format string, scale int, mask *models.Mask) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	if format == "" {
		format = "png"
	}
	format = strings.TrimPrefix(format, ".")

	var paths []string
	for _, name := range maps.Names {
		viewer := NewViewer(maps.Values[name])
		vmin, vmax := viewer.Range()
		if r, ok := ranges[name]; ok {
			vmin, vmax = r[0], r[1]
		}
		if vmax <= vmin {
			vmax = vmin + 1
		}
		img, err := viewer.Render(vmin, vmax, mask)
		if err != nil {
			return paths, fmt.Errorf("render %s: %w", name, err)
		}
		path := filepath.Join(dir, name+"."+format)
		if err := SaveImage(Scale(img, scale), path); err != nil {
			return paths, fmt.Errorf("save %s: %w", name, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
