// Package vectorize turns generated raster stamps into print-ready vector
// files. The chain is raster -> bitonal PBM -> potrace SVG -> inkscape EPS;
// the .ai deliverable carries the EPS payload, which Illustrator opens
// natively.
package vectorize

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/goopick/madstamp/internal/collab"
	"github.com/goopick/madstamp/internal/common"
)

// Converter implements collab.VectorConverter on top of external tools.
type Converter struct {
	store  collab.ArtifactStore
	runner Runner
	cfg    common.ConversionConfig
	log    *slog.Logger
}

func NewConverter(store collab.ArtifactStore, runner Runner, cfg common.ConversionConfig, log *slog.Logger) *Converter {
	if log == nil {
		log = slog.Default()
	}
	if runner == nil {
		runner = NewExecRunner()
	}
	return &Converter{store: store, runner: runner, cfg: cfg, log: log}
}

var _ collab.VectorConverter = (*Converter)(nil)

// CheckTools verifies the external binaries exist before the server accepts
// work. Called once at startup and from the CLI probe.
func (c *Converter) CheckTools(ctx context.Context) error {
	if _, err := c.runner.Run(ctx, c.cfg.Potrace, "--version"); err != nil {
		return common.NewConversionError("potrace probe", err)
	}
	if _, err := c.runner.Run(ctx, c.cfg.Inkscape, "--version"); err != nil {
		return common.NewConversionError("inkscape probe", err)
	}
	return nil
}

func (c *Converter) Convert(ctx context.Context, rasterRef string) (collab.VectorArtifacts, error) {
	data, err := c.store.Get(ctx, rasterRef)
	if err != nil {
		return collab.VectorArtifacts{}, common.WrapError(err, "fetch raster")
	}

	pbm, err := binarize(data)
	if err != nil {
		return collab.VectorArtifacts{}, common.NewConversionError("binarize", err)
	}

	dir, err := os.MkdirTemp(c.cfg.WorkDir, "vectorize-*")
	if err != nil {
		return collab.VectorArtifacts{}, common.WrapError(err, "create work dir")
	}
	defer os.RemoveAll(dir)

	pbmPath := filepath.Join(dir, "input.pbm")
	svgPath := filepath.Join(dir, "output.svg")
	epsPath := filepath.Join(dir, "output.eps")
	if err := os.WriteFile(pbmPath, pbm, 0o600); err != nil {
		return collab.VectorArtifacts{}, common.WrapError(err, "write pbm")
	}

	if _, err := c.runner.Run(ctx, c.cfg.Potrace, "--svg", "-o", svgPath, pbmPath); err != nil {
		return collab.VectorArtifacts{}, common.NewConversionError("potrace", err)
	}
	if _, err := c.runner.Run(ctx, c.cfg.Inkscape, svgPath,
		"--export-type=eps", "--export-filename="+epsPath); err != nil {
		return collab.VectorArtifacts{}, common.NewConversionError("inkscape", err)
	}

	svg, err := os.ReadFile(svgPath)
	if err != nil {
		return collab.VectorArtifacts{}, common.NewConversionError("read svg", err)
	}
	eps, err := os.ReadFile(epsPath)
	if err != nil {
		return collab.VectorArtifacts{}, common.NewConversionError("read eps", err)
	}

	base := strings.TrimSuffix(rasterRef, path.Ext(rasterRef))
	arts := collab.VectorArtifacts{}
	if arts.SVGRef, err = c.store.Put(ctx, base+".svg", svg, "image/svg+xml"); err != nil {
		return collab.VectorArtifacts{}, common.WrapError(err, "store svg")
	}
	if arts.EPSRef, err = c.store.Put(ctx, base+".eps", eps, "application/postscript"); err != nil {
		return collab.VectorArtifacts{}, common.WrapError(err, "store eps")
	}
	if c.cfg.EmitAI {
		if arts.AIRef, err = c.store.Put(ctx, base+".ai", eps, "application/postscript"); err != nil {
			return collab.VectorArtifacts{}, common.WrapError(err, "store ai")
		}
	}

	c.log.Info("vectorize.converted", "raster", rasterRef, "svg_bytes", len(svg), "eps_bytes", len(eps))
	return arts, nil
}

// binarize thresholds the raster into a P4 PBM, the only input format potrace
// accepts without plugins. Threshold sits at the luminance midpoint of the
// image so scans with grey paper still separate.
func binarize(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("empty image")
	}

	lum := make([]float64, 0, w*h)
	var min, max float64 = 255, 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			l := 0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)
			lum = append(lum, l)
			if l < min {
				min = l
			}
			if l > max {
				max = l
			}
		}
	}
	threshold := (min + max) / 2

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "P4\n%d %d\n", w, h)
	rowBytes := (w + 7) / 8
	row := make([]byte, rowBytes)
	for y := 0; y < h; y++ {
		for i := range row {
			row[i] = 0
		}
		for x := 0; x < w; x++ {
			if lum[y*w+x] < threshold { // dark pixel engraves
				row[x/8] |= 0x80 >> (x % 8)
			}
		}
		buf.Write(row)
	}
	return buf.Bytes(), nil
}
