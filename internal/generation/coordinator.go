// Package generation orchestrates the external image generation automation
// and the follow-on vector conversion. Each generation attempt is recorded
// append-only so operators can audit how many tries an order burned.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/goopick/madstamp/constants"
	"github.com/goopick/madstamp/internal/collab"
	"github.com/goopick/madstamp/internal/common"
	"github.com/goopick/madstamp/internal/entity"
	"github.com/goopick/madstamp/internal/lifecycle"
	"github.com/goopick/madstamp/internal/repository"
)

// Coordinator drives one order through GENERATING and CONVERTING.
type Coordinator struct {
	gen      collab.Generator
	conv     collab.VectorConverter
	attempts repository.GenerationRepository
	machine  *lifecycle.Machine
	cfg      common.GenerationConfig
	convCfg  common.ConversionConfig
	log      *slog.Logger
}

func NewCoordinator(gen collab.Generator, conv collab.VectorConverter,
	attempts repository.GenerationRepository, machine *lifecycle.Machine,
	cfg common.GenerationConfig, convCfg common.ConversionConfig, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = 2 * time.Minute
	}
	if convCfg.MaxAttempts < 1 {
		convCfg.MaxAttempts = 1
	}
	return &Coordinator{
		gen: gen, conv: conv, attempts: attempts, machine: machine,
		cfg: cfg, convCfg: convCfg, log: log,
	}
}

// Produce runs the full production phase for a PRODUCIBLE order. referenceRef
// points at the customer's best artwork; in is the prompt material from
// analysis. Every outcome, success or not, lands the order in a legal state.
func (c *Coordinator) Produce(ctx context.Context, order *entity.Order, referenceRef string, in PromptInput) error {
	if err := c.machine.ApplyGeneration(ctx, order.ID, constants.GenStarted); err != nil {
		return err
	}

	prompt := BuildPrompt(in)
	rasterRef, attemptID, err := c.generate(ctx, order.ID, prompt, referenceRef)
	if err != nil {
		c.log.Warn("processor.generation.exhausted", "order_id", order.ID, "err", err)
		return c.machine.ApplyGeneration(ctx, order.ID, constants.GenFailed)
	}

	if err := c.machine.ApplyGeneration(ctx, order.ID, constants.GenRasterReady); err != nil {
		return err
	}

	arts, err := c.convert(ctx, order.ID, rasterRef)
	if err != nil {
		c.log.Warn("processor.conversion.exhausted", "order_id", order.ID, "err", err)
		return c.machine.Fail(ctx, order.ID, "vector conversion failed")
	}

	if err := c.attempts.AttachVectors(ctx, attemptID, arts.SVGRef, arts.EPSRef, arts.AIRef); err != nil {
		return err
	}
	return c.machine.ApplyGeneration(ctx, order.ID, constants.GenCompleted)
}

// generate runs the attempt loop: one initial try plus MaxRetries. Each
// attempt is recorded whether it produced a raster or not.
func (c *Coordinator) generate(ctx context.Context, orderID uuid.UUID, prompt, referenceRef string) (string, uuid.UUID, error) {
	var lastErr error
	for try := 0; try <= c.cfg.MaxRetries; try++ {
		attempt, err := c.attempts.NextAttempt(ctx, orderID)
		if err != nil {
			return "", uuid.Nil, err
		}

		started := time.Now()
		rasterRef, runErr := c.runAttempt(ctx, prompt, referenceRef)
		elapsed := time.Since(started)

		rec := &entity.GenerationResult{
			ID:        uuid.New(),
			OrderID:   orderID,
			Attempt:   attempt,
			Prompt:    prompt,
			RasterRef: rasterRef,
			Status:    constants.GenRasterReady,
			Elapsed:   elapsed,
			CreatedAt: time.Now().UTC(),
		}
		if runErr != nil {
			rec.Status = constants.GenFailed
			rec.ErrorMessage = runErr.Error()
		}
		if err := c.attempts.Insert(ctx, rec); err != nil {
			return "", uuid.Nil, err
		}

		if runErr == nil {
			return rasterRef, rec.ID, nil
		}
		lastErr = runErr
		if ctx.Err() != nil {
			break
		}
		c.log.Warn("processor.generation.attempt_failed",
			"order_id", orderID, "attempt", attempt, "elapsed", elapsed, "err", runErr)
	}
	return "", uuid.Nil, common.NewServiceError("generation", lastErr)
}

// runAttempt starts one generation and polls it to completion under the
// configured deadline.
func (c *Coordinator) runAttempt(ctx context.Context, prompt, referenceRef string) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Deadline)
	defer cancel()

	handle, err := c.gen.StartGeneration(attemptCtx, prompt, referenceRef)
	if err != nil {
		return "", common.WrapError(err, "start generation")
	}

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-attemptCtx.Done():
			return "", common.NewTimeoutError("generation.poll", attemptCtx.Err())
		case <-ticker.C:
			status, err := c.gen.PollStatus(attemptCtx, handle)
			if err != nil {
				// Transient poll faults are absorbed; the deadline bounds them.
				c.log.Debug("processor.generation.poll_error", "handle", handle, "err", err)
				continue
			}
			if status.Error != "" {
				return "", fmt.Errorf("automation reported: %s", status.Error)
			}
			if status.Done {
				if status.RasterRef == "" {
					return "", errors.New("automation finished without a raster")
				}
				return status.RasterRef, nil
			}
		}
	}
}

func (c *Coordinator) convert(ctx context.Context, orderID uuid.UUID, rasterRef string) (collab.VectorArtifacts, error) {
	var lastErr error
	for attempt := 1; attempt <= c.convCfg.MaxAttempts; attempt++ {
		arts, err := c.conv.Convert(ctx, rasterRef)
		if err == nil {
			return arts, nil
		}
		lastErr = err
		c.log.Warn("processor.conversion.attempt_failed", "order_id", orderID, "attempt", attempt, "err", err)
		if ctx.Err() != nil {
			break
		}
	}
	return collab.VectorArtifacts{}, common.NewConversionError("vectorize", lastErr)
}
