package minutes

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/advisorly/advisorly/internal/media"
	"github.com/advisorly/advisorly/internal/metrics"
	"github.com/advisorly/advisorly/internal/models"
)

// Start launches the bounded worker pool. Workers drain the job queue
// until Stop is called; in-flight runs finish their current stage.
func (p *Pipeline) Start() {
	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range p.jobs {
				p.process(j)
			}
		}()
	}
	go func() {
		wg.Wait()
		close(p.done)
	}()
}

// Stop closes the queue and waits for workers to drain it.
func (p *Pipeline) Stop() {
	close(p.jobs)
	<-p.done
}

// process drives one run through conversion and transcription. Every
// failure path lands the run in error with a processingError; nothing
// here ever propagates to the submitter, which already returned.
func (p *Pipeline) process(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.ProcessingTimeout)
	defer cancel()

	audioURL := j.mediaURL

	if j.kind == media.KindVideo {
		start := time.Now()
		converted, err := p.converter.Convert(ctx, j.mediaURL)
		metrics.PipelineStageDuration.WithLabelValues("convert").Observe(time.Since(start).Seconds())
		if err != nil {
			p.fail(j, "media conversion failed: "+failureDetail(ctx, err))
			return
		}
		audioURL = converted

		ok, err := p.db.TransitionMinutes(ctx, j.runID, models.MinutesQueued, models.MinutesProcessing)
		if err != nil || !ok {
			p.fail(j, "run state changed during conversion")
			return
		}
		p.cacheStatus(ctx, j.requestID, j.runID, models.MinutesProcessing, "")
	}

	start := time.Now()
	transcript, err := p.transcriber.Transcribe(ctx, audioURL)
	metrics.PipelineStageDuration.WithLabelValues("transcribe").Observe(time.Since(start).Seconds())
	if err != nil {
		p.fail(j, "transcription failed: "+failureDetail(ctx, err))
		return
	}

	ok, err := p.db.SetMinutesReady(ctx, j.runID, transcript.Text, transcript.Summary, transcript.KeyPoints, transcript.ActionItems)
	if err != nil {
		p.fail(j, "failed to store transcription result")
		return
	}
	if !ok {
		p.logger.Warn().Stringer("run_id", j.runID).Msg("run left processing before completion")
		return
	}

	metrics.MinutesRuns.WithLabelValues("ready").Inc()
	p.cacheStatus(context.Background(), j.requestID, j.runID, models.MinutesReady, "")
	p.notify(j.requestID, j.runID)

	p.logger.Info().
		Stringer("run_id", j.runID).
		Stringer("request_id", j.requestID).
		Msg("minutes ready")
}

// fail lands the run in error. The store clears any partial content so
// an errored run never exposes an inconsistent mixture.
func (p *Pipeline) fail(j job, msg string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := p.db.SetMinutesError(ctx, j.runID, msg); err != nil {
		p.logger.Error().Err(err).Stringer("run_id", j.runID).Msg("failed to record run error")
		return
	}

	metrics.MinutesRuns.WithLabelValues("error").Inc()
	p.cacheStatus(ctx, j.requestID, j.runID, models.MinutesError, msg)
	p.notify(j.requestID, j.runID)

	p.logger.Warn().
		Stringer("run_id", j.runID).
		Str("processing_error", msg).
		Msg("minutes run failed")
}

// notify pushes the finished run over the realtime channel, if wired.
func (p *Pipeline) notify(requestID, runID uuid.UUID) {
	if p.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	run, err := p.db.GetMinutes(ctx, runID)
	if err != nil || run == nil {
		return
	}
	p.notifier.MinutesFinished(requestID, run)
}

// failureDetail maps a stage error to the polled processingError,
// naming the wall-clock budget when that is what expired.
func failureDetail(ctx context.Context, err error) string {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "processing exceeded the time budget"
	}
	return err.Error()
}
