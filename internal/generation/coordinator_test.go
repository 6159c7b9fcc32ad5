package generation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goopick/madstamp/constants"
	"github.com/goopick/madstamp/internal/collab"
	"github.com/goopick/madstamp/internal/common"
	"github.com/goopick/madstamp/internal/entity"
	"github.com/goopick/madstamp/internal/lifecycle"
	"github.com/goopick/madstamp/internal/repository"
)

type fakeGenerator struct {
	mu        sync.Mutex
	starts    int
	failFirst int // fail the first N starts
	polls     int // polls before Done
	pollSeen  int
	raster    string
}

func (f *fakeGenerator) StartGeneration(_ context.Context, _, _ string) (collab.GenerationHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.starts <= f.failFirst {
		return "", errors.New("automation busy")
	}
	f.pollSeen = 0
	return collab.GenerationHandle("job-1"), nil
}

func (f *fakeGenerator) PollStatus(_ context.Context, _ collab.GenerationHandle) (collab.GenerationStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pollSeen++
	if f.pollSeen < f.polls {
		return collab.GenerationStatus{}, nil
	}
	return collab.GenerationStatus{Done: true, RasterRef: f.raster}, nil
}

type fakeConverter struct {
	mu    sync.Mutex
	calls int
	fails int
	arts  collab.VectorArtifacts
}

func (f *fakeConverter) Convert(_ context.Context, _ string) (collab.VectorArtifacts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.fails {
		return collab.VectorArtifacts{}, errors.New("potrace exit 1")
	}
	return f.arts, nil
}

type testRig struct {
	store   *repository.MemoryStore
	machine *lifecycle.Machine
	order   *entity.Order
}

func newRig(t *testing.T) *testRig {
	t.Helper()
	store := repository.NewMemoryStore()
	machine := lifecycle.NewMachine(store, nil, 2, nil)
	order := &entity.Order{ID: uuid.New(), MessageID: "m1", ThreadID: "t1"}
	ctx := context.Background()
	require.NoError(t, machine.Submit(ctx, order, nil))
	require.NoError(t, machine.BeginAnalysis(ctx, order.ID))
	require.NoError(t, machine.ApplyAnalysis(ctx, order.ID, lifecycle.Decision{Score: 90, Verdict: constants.VerdictProducible}))
	return &testRig{store: store, machine: machine, order: order}
}

func testCoordinator(rig *testRig, gen collab.Generator, conv collab.VectorConverter, maxRetries int) *Coordinator {
	return NewCoordinator(gen, conv, rig.store.Generations(), rig.machine,
		common.GenerationConfig{Deadline: time.Second, PollInterval: time.Millisecond, MaxRetries: maxRetries},
		common.ConversionConfig{MaxAttempts: 2}, nil)
}

func TestProduceHappyPath(t *testing.T) {
	rig := newRig(t)
	gen := &fakeGenerator{polls: 3, raster: "artifacts/raster.png"}
	conv := &fakeConverter{arts: collab.VectorArtifacts{SVGRef: "a.svg", EPSRef: "a.eps", AIRef: "a.ai"}}
	ctx := context.Background()

	c := testCoordinator(rig, gen, conv, 2)
	require.NoError(t, c.Produce(ctx, rig.order, "ref.png", PromptInput{DetectedText: "GOOPICK"}))

	o, err := rig.store.GetByID(ctx, rig.order.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.StatusCompleted, o.Status)

	attempts, err := rig.store.Generations().ListByOrder(ctx, rig.order.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, constants.GenCompleted, attempts[0].Status)
	assert.Equal(t, "artifacts/raster.png", attempts[0].RasterRef)
	assert.Equal(t, "a.svg", attempts[0].SVGRef)
	assert.Equal(t, "a.eps", attempts[0].EPSRef)
}

func TestProduceRetriesRecordDistinctAttempts(t *testing.T) {
	rig := newRig(t)
	gen := &fakeGenerator{failFirst: 1, polls: 1, raster: "raster.png"}
	conv := &fakeConverter{arts: collab.VectorArtifacts{SVGRef: "a.svg", EPSRef: "a.eps"}}
	ctx := context.Background()

	c := testCoordinator(rig, gen, conv, 2)
	require.NoError(t, c.Produce(ctx, rig.order, "ref.png", PromptInput{}))

	attempts, err := rig.store.Generations().ListByOrder(ctx, rig.order.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 2, "every attempt leaves its own record")
	assert.Equal(t, 1, attempts[0].Attempt)
	assert.Equal(t, constants.GenFailed, attempts[0].Status)
	assert.NotEmpty(t, attempts[0].ErrorMessage)
	assert.Equal(t, 2, attempts[1].Attempt)
	assert.Equal(t, constants.GenCompleted, attempts[1].Status)
}

func TestProduceExhaustionFailsOrder(t *testing.T) {
	rig := newRig(t)
	gen := &fakeGenerator{failFirst: 1000}
	ctx := context.Background()

	c := testCoordinator(rig, gen, &fakeConverter{}, 2)
	require.NoError(t, c.Produce(ctx, rig.order, "ref.png", PromptInput{}))

	o, err := rig.store.GetByID(ctx, rig.order.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.StatusFailed, o.Status)
	assert.Equal(t, 3, gen.starts, "one initial try plus two retries")

	attempts, _ := rig.store.Generations().ListByOrder(ctx, rig.order.ID)
	assert.Len(t, attempts, 3)
}

func TestProduceConversionRetryThenFail(t *testing.T) {
	rig := newRig(t)
	gen := &fakeGenerator{polls: 1, raster: "raster.png"}
	conv := &fakeConverter{fails: 1000}
	ctx := context.Background()

	c := testCoordinator(rig, gen, conv, 0)
	require.NoError(t, c.Produce(ctx, rig.order, "ref.png", PromptInput{}))

	o, err := rig.store.GetByID(ctx, rig.order.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.StatusFailed, o.Status)
	assert.Equal(t, 2, conv.calls, "conversion budget is two attempts")
}

func TestProduceRequiresProducible(t *testing.T) {
	store := repository.NewMemoryStore()
	machine := lifecycle.NewMachine(store, nil, 2, nil)
	order := &entity.Order{ID: uuid.New()}
	require.NoError(t, machine.Submit(context.Background(), order, nil))

	c := NewCoordinator(&fakeGenerator{}, &fakeConverter{}, store.Generations(), machine,
		common.GenerationConfig{}, common.ConversionConfig{}, nil)
	err := c.Produce(context.Background(), order, "ref.png", PromptInput{})
	assert.ErrorIs(t, err, common.ErrInvalidTransition)
}

func TestBuildPromptSelectsTemplate(t *testing.T) {
	p := BuildPrompt(PromptInput{DetectedText: "김철수", FontStyle: "handwriting_style", CustomerNote: "round please"})
	assert.Contains(t, p, "김철수")
	assert.Contains(t, p, "handwriting")
	assert.Contains(t, p, "round please")

	fallback := BuildPrompt(PromptInput{})
	assert.Contains(t, fallback, "the customer's artwork")
	assert.Equal(t, "traditional_korean", SelectTemplate("something else"))
}
