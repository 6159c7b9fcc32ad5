package vectorize

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goopick/madstamp/internal/common"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls [][]string
	fail  string // binary name that should fail
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{name}, args...))
	f.mu.Unlock()
	if name == f.fail {
		return nil, errors.New("exit status 1")
	}
	// Simulate the tool writing its output file.
	for i, a := range args {
		if out, ok := strings.CutPrefix(a, "--export-filename="); ok {
			_ = os.WriteFile(out, []byte("%!PS fake eps"), 0o600)
		}
		if a == "-o" && i+1 < len(args) {
			_ = os.WriteFile(args[i+1], []byte("<svg/>"), 0o600)
		}
	}
	return nil, nil
}

type mapStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMapStore() *mapStore { return &mapStore{data: make(map[string][]byte)} }

func (m *mapStore) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = data
	return key, nil
}

func (m *mapStore) Get(_ context.Context, ref string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.data[ref]
	if !ok {
		return nil, common.ErrNotFound
	}
	return d, nil
}

func rasterPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			c := color.NRGBA{255, 255, 255, 255}
			if x > 8 && x < 24 && y > 8 && y < 24 {
				c = color.NRGBA{0, 0, 0, 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func testConverter(t *testing.T, runner Runner, emitAI bool) (*Converter, *mapStore) {
	t.Helper()
	store := newMapStore()
	cfg := common.ConversionConfig{
		Potrace: "potrace", Inkscape: "inkscape",
		WorkDir: t.TempDir(), EmitAI: emitAI,
	}
	return NewConverter(store, runner, cfg, nil), store
}

func TestConvertProducesVectorRefs(t *testing.T) {
	runner := &fakeRunner{}
	conv, store := testConverter(t, runner, true)
	ctx := context.Background()

	_, err := store.Put(ctx, "orders/x/raster.png", rasterPNG(t), "image/png")
	require.NoError(t, err)

	arts, err := conv.Convert(ctx, "orders/x/raster.png")
	require.NoError(t, err)
	assert.Equal(t, "orders/x/raster.svg", arts.SVGRef)
	assert.Equal(t, "orders/x/raster.eps", arts.EPSRef)
	assert.Equal(t, "orders/x/raster.ai", arts.AIRef)

	svg, err := store.Get(ctx, arts.SVGRef)
	require.NoError(t, err)
	assert.NotEmpty(t, svg)

	require.Len(t, runner.calls, 2)
	assert.Equal(t, "potrace", runner.calls[0][0])
	assert.Equal(t, "inkscape", runner.calls[1][0])
}

func TestConvertWithoutAI(t *testing.T) {
	conv, store := testConverter(t, &fakeRunner{}, false)
	ctx := context.Background()
	_, _ = store.Put(ctx, "r.png", rasterPNG(t), "image/png")

	arts, err := conv.Convert(ctx, "r.png")
	require.NoError(t, err)
	assert.Empty(t, arts.AIRef)
	assert.NotEmpty(t, arts.EPSRef)
}

func TestConvertPotraceFailure(t *testing.T) {
	conv, store := testConverter(t, &fakeRunner{fail: "potrace"}, false)
	ctx := context.Background()
	_, _ = store.Put(ctx, "r.png", rasterPNG(t), "image/png")

	_, err := conv.Convert(ctx, "r.png")
	require.Error(t, err)
	var se *common.ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, common.KindConversion, se.Kind)
}

func TestConvertRejectsGarbageRaster(t *testing.T) {
	conv, store := testConverter(t, &fakeRunner{}, false)
	ctx := context.Background()
	_, _ = store.Put(ctx, "r.png", []byte("not an image"), "image/png")

	_, err := conv.Convert(ctx, "r.png")
	assert.Error(t, err)
}

func TestCheckTools(t *testing.T) {
	conv, _ := testConverter(t, &fakeRunner{}, false)
	assert.NoError(t, conv.CheckTools(context.Background()))

	broken, _ := testConverter(t, &fakeRunner{fail: "inkscape"}, false)
	assert.Error(t, broken.CheckTools(context.Background()))
}

func TestBinarizePBMHeader(t *testing.T) {
	pbm, err := binarize(rasterPNG(t))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pbm, []byte("P4\n32 32\n")))
	// 32 pixels pack into 4 bytes per row.
	assert.Len(t, pbm, len("P4\n32 32\n")+4*32)
}
