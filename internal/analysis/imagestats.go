package analysis

import (
	"bytes"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"

	"github.com/goopick/madstamp/internal/common"
)

// Stats are the locally computed quality signals for one image, each
// normalized to [0,100].
type Stats struct {
	Width                int
	Height               int
	Resolution           float64
	EdgeClarity          float64
	ColorSimplicity      float64
	BackgroundSeparation float64
	Complexity           float64
}

// maxSample caps the analysis grid so large uploads stay cheap. 160x160
// samples is plenty for the coarse signals we need.
const maxSample = 160

// Measure decodes data and computes the local quality signals. Supported
// formats are the upload allowlist minus webp and bmp, which the classifier
// still sees; for those only the decode fails and the caller falls back to
// neutral signals.
func Measure(data []byte) (Stats, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Stats{}, common.WrapError(err, "decode image")
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return Stats{}, common.ErrValidation
	}

	lum, cols := sampleGrid(img)

	s := Stats{
		Width:                w,
		Height:               h,
		Resolution:           resolutionScore(w, h),
		ColorSimplicity:      colorSimplicityScore(cols),
		BackgroundSeparation: backgroundScore(lum),
	}
	s.EdgeClarity, s.Complexity = edgeScores(lum)
	return s, nil
}

// Dimensions reports pixel size without computing the full signal set.
func Dimensions(data []byte) (int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, common.WrapError(err, "decode image config")
	}
	return cfg.Width, cfg.Height, nil
}

// sampleGrid walks the image on a stride so cost is bounded, returning a
// luminance grid and quantized color counts.
func sampleGrid(img image.Image) ([][]float64, map[uint32]int) {
	b := img.Bounds()
	stepX := (b.Dx() + maxSample - 1) / maxSample
	stepY := (b.Dy() + maxSample - 1) / maxSample
	if stepX < 1 {
		stepX = 1
	}
	if stepY < 1 {
		stepY = 1
	}

	cols := make(map[uint32]int)
	var lum [][]float64
	for y := b.Min.Y; y < b.Max.Y; y += stepY {
		var row []float64
		for x := b.Min.X; x < b.Max.X; x += stepX {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			// 4 bits per channel is enough to tell a flat logo from a photo.
			key := uint32(c.R>>4)<<8 | uint32(c.G>>4)<<4 | uint32(c.B>>4)
			cols[key]++
			row = append(row, 0.299*float64(c.R)+0.587*float64(c.G)+0.114*float64(c.B))
		}
		lum = append(lum, row)
	}
	return lum, cols
}

func resolutionScore(w, h int) float64 {
	short := float64(w)
	if h < w {
		short = float64(h)
	}
	switch {
	case short >= 2160:
		return 100
	case short >= 1080:
		return 85
	case short >= 720:
		return 65
	case short >= 360:
		return 40
	default:
		return 40 * short / 360
	}
}

// colorSimplicityScore rewards few distinct colors. Stamps engrave a single
// color, so a two-tone logo scores near 100 and a photo near 0.
func colorSimplicityScore(cols map[uint32]int) float64 {
	n := float64(len(cols))
	switch {
	case n <= 8:
		return 100
	case n <= 32:
		return 100 - (n-8)*25.0/24.0 // 100 down to 75
	case n <= 256:
		return 75 - (n-32)*50.0/224.0 // 75 down to 25
	default:
		score := 25 - (n-256)/40
		return math.Max(score, 0)
	}
}

// edgeScores computes edge sharpness (clarity: mean gradient magnitude over
// the pixels that are edges) and edge density (complexity, inverted: busier
// images score lower).
func edgeScores(lum [][]float64) (clarity, complexity float64) {
	rows := len(lum)
	if rows < 2 || len(lum[0]) < 2 {
		return 50, 50
	}
	var edgeSum float64
	var edgeCount, edges, total int
	for y := 1; y < rows; y++ {
		cols := len(lum[y])
		if c := len(lum[y-1]); c < cols {
			cols = c
		}
		for x := 1; x < cols; x++ {
			gx := lum[y][x] - lum[y][x-1]
			gy := lum[y][x] - lum[y-1][x]
			mag := math.Hypot(gx, gy)
			total++
			if mag > 16 {
				edgeSum += mag
				edgeCount++
			}
			if mag > 48 {
				edges++
			}
		}
	}
	if total == 0 {
		return 50, 50
	}

	// A crisp transition jumps the full luminance range in one pixel; soft
	// blurred edges smear into many small gradients. 255/100 = 2.55.
	if edgeCount == 0 {
		clarity = 50 // featureless image, nothing to judge
	} else {
		clarity = math.Min(edgeSum/float64(edgeCount)/2.55, 100)
	}

	density := float64(edges) / float64(total)
	// Up to 12% edge pixels is a clean design; beyond 40% it is noise.
	switch {
	case density <= 0.12:
		complexity = 100
	case density >= 0.40:
		complexity = 10
	default:
		complexity = 100 - (density-0.12)*(90/0.28)
	}
	return clarity, complexity
}

// backgroundScore compares border luminance uniformity against the contrast
// between border and center. A flat background behind a distinct subject
// scores high.
func backgroundScore(lum [][]float64) float64 {
	rows := len(lum)
	if rows < 4 || len(lum[0]) < 4 {
		return 50
	}

	var border []float64
	var center []float64
	for y, row := range lum {
		for x, v := range row {
			if y == 0 || y == rows-1 || x == 0 || x == len(row)-1 {
				border = append(border, v)
			} else if y > rows/4 && y < 3*rows/4 && x > len(row)/4 && x < 3*len(row)/4 {
				center = append(center, v)
			}
		}
	}
	if len(border) == 0 || len(center) == 0 {
		return 50
	}

	bMean, bStd := meanStd(border)
	cMean, _ := meanStd(center)

	uniformity := math.Max(0, 1-bStd/64) // flat border
	contrast := math.Min(math.Abs(bMean-cMean)/96, 1)
	return (uniformity*0.6 + contrast*0.4) * 100
}

func meanStd(vs []float64) (mean, std float64) {
	for _, v := range vs {
		mean += v
	}
	mean /= float64(len(vs))
	for _, v := range vs {
		std += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(std / float64(len(vs)))
}
