// Package minutes owns the recording-ingestion pipeline:
// queued -> processing -> {ready, error}, ready -> published. Submit
// validates and enqueues; all heavy work happens on the worker pool.
package minutes

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/advisorly/advisorly/internal/errs"
	"github.com/advisorly/advisorly/internal/media"
	"github.com/advisorly/advisorly/internal/metrics"
	"github.com/advisorly/advisorly/internal/models"
	"github.com/advisorly/advisorly/internal/store"
)

// Notifier receives pipeline completion events for realtime push.
// Polling remains the source of truth; the push only removes latency.
type Notifier interface {
	MinutesFinished(requestID uuid.UUID, run *models.ConsultationMinutes)
}

// StatusCache absorbs the status-poll storm. *store.RedisStore
// implements it; a nil cache means every poll reads the store. Only
// transition sites write to the cache, so a slow poll can never clobber
// a newer snapshot with a stale one.
type StatusCache interface {
	CacheMinutesStatus(ctx context.Context, requestID uuid.UUID, snap store.MinutesStatusSnapshot) error
	GetCachedMinutesStatus(ctx context.Context, requestID uuid.UUID) (*store.MinutesStatusSnapshot, error)
}

// Config bounds the pipeline's resource usage.
type Config struct {
	Workers           int
	QueueDepth        int
	ProcessingTimeout time.Duration
	MaxUploadBytes    int64
}

// Pipeline is the MoM pipeline controller.
type Pipeline struct {
	db          store.DataStore
	cache       StatusCache // optional
	blobs       media.BlobStore
	converter   media.Converter
	transcriber media.Transcriber
	logger      zerolog.Logger
	cfg         Config

	jobs     chan job
	notifier Notifier
	done     chan struct{}
}

type job struct {
	runID     uuid.UUID
	requestID uuid.UUID
	mediaURL  string
	kind      media.Kind
}

// NewPipeline creates the controller. cache may be nil.
func NewPipeline(db store.DataStore, cache StatusCache, blobs media.BlobStore, converter media.Converter, transcriber media.Transcriber, logger zerolog.Logger, cfg Config) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 64
	}
	if cfg.ProcessingTimeout <= 0 {
		cfg.ProcessingTimeout = 10 * time.Minute
	}
	return &Pipeline{
		db:          db,
		cache:       cache,
		blobs:       blobs,
		converter:   converter,
		transcriber: transcriber,
		logger:      logger,
		cfg:         cfg,
		jobs:        make(chan job, cfg.QueueDepth),
		done:        make(chan struct{}),
	}
}

// SetNotifier wires the realtime push. Must be called before Start.
func (p *Pipeline) SetNotifier(n Notifier) { p.notifier = n }

// Submit validates the upload, stores the recording and creates a new
// run. Video enters queued (conversion ahead); audio skips straight to
// processing. The run id returns immediately; everything else happens
// out of band.
func (p *Pipeline) Submit(ctx context.Context, requestID, callerID uuid.UUID, filename, contentType string, size int64, content io.Reader) (*models.ConsultationMinutes, error) {
	req, err := p.db.GetRequest(ctx, requestID)
	if err != nil {
		return nil, errs.External("failed to load request", err)
	}
	if req == nil || !req.IsMember(callerID) {
		return nil, errs.Authorization()
	}
	if req.Status != models.RequestAccepted && req.Status != models.RequestCompleted {
		return nil, errs.Conflict("recordings can only be uploaded for accepted or completed consultations")
	}

	if size > p.cfg.MaxUploadBytes {
		return nil, errs.Payload("recording exceeds the %d MB limit", p.cfg.MaxUploadBytes/(1<<20))
	}
	kind := media.KindOf(filename, contentType)
	if kind == media.KindUnknown {
		return nil, errs.Payload("unrecognized media type %q", contentType)
	}

	mediaURL, err := p.blobs.Put(ctx, filename, io.LimitReader(content, p.cfg.MaxUploadBytes))
	if err != nil {
		return nil, errs.External("failed to store recording", err)
	}

	status := models.MinutesProcessing
	if kind == media.KindVideo {
		status = models.MinutesQueued
	}

	run := &models.ConsultationMinutes{
		ID:        uuid.New(),
		RequestID: requestID,
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}

	if err := p.db.CreateMinutesRun(ctx, run); err != nil {
		if errors.Is(err, store.ErrActiveRun) {
			return nil, errs.Validation("a minutes run is already in progress for this consultation")
		}
		return nil, errs.External("failed to create minutes run", err)
	}

	metrics.MinutesRuns.WithLabelValues("submitted").Inc()
	p.cacheStatus(ctx, requestID, run.ID, run.Status, "")

	select {
	case p.jobs <- job{runID: run.ID, requestID: requestID, mediaURL: mediaURL, kind: kind}:
	default:
		// Queue saturated. Fail the run now rather than leave it
		// pending with no worker ever picking it up.
		const saturated = "processing queue is full, please retry"
		if _, err := p.db.SetMinutesError(ctx, run.ID, saturated); err != nil {
			p.logger.Error().Err(err).Stringer("run_id", run.ID).Msg("failed to fail saturated run")
		}
		p.cacheStatus(ctx, requestID, run.ID, models.MinutesError, saturated)
		return nil, errs.External("processing queue is full", nil)
	}

	p.logger.Info().
		Stringer("run_id", run.ID).
		Stringer("request_id", requestID).
		Str("status", string(run.Status)).
		Msg("minutes run submitted")
	return run, nil
}

// Status returns the latest run's observable state for polling. Safe at
// arbitrary frequency: reads hit the short-TTL cache when available and
// never mutate anything, the cache included. Only transitions write the
// cache, so polls cannot resurrect a superseded status.
func (p *Pipeline) Status(ctx context.Context, requestID, callerID uuid.UUID) (*store.MinutesStatusSnapshot, error) {
	req, err := p.db.GetRequest(ctx, requestID)
	if err != nil {
		return nil, errs.External("failed to load request", err)
	}
	if req == nil || !req.IsMember(callerID) {
		return nil, errs.Authorization()
	}

	if p.cache != nil {
		if snap, err := p.cache.GetCachedMinutesStatus(ctx, requestID); err == nil && snap != nil {
			return snap, nil
		}
	}

	run, err := p.db.LatestMinutesByRequest(ctx, requestID)
	if err != nil {
		return nil, errs.External("failed to load minutes run", err)
	}
	if run == nil {
		return nil, errs.Validation("no minutes run exists for this consultation")
	}

	return &store.MinutesStatusSnapshot{
		RunID:           run.ID,
		Status:          string(run.Status),
		ProcessingError: run.ProcessingError,
	}, nil
}

// Get returns the latest run with its content. Advisors see content
// from ready onward; clients only once published.
func (p *Pipeline) Get(ctx context.Context, requestID, callerID uuid.UUID) (*models.ConsultationMinutes, error) {
	req, err := p.db.GetRequest(ctx, requestID)
	if err != nil {
		return nil, errs.External("failed to load request", err)
	}
	if req == nil || !req.IsMember(callerID) {
		return nil, errs.Authorization()
	}

	run, err := p.db.LatestMinutesByRequest(ctx, requestID)
	if err != nil {
		return nil, errs.External("failed to load minutes run", err)
	}
	if run == nil {
		return nil, errs.Validation("no minutes run exists for this consultation")
	}

	if callerID == req.ClientID && run.Status != models.MinutesPublished {
		stripped := *run
		stripped.Transcript = ""
		stripped.Summary = ""
		stripped.KeyPoints = nil
		stripped.ActionItems = nil
		stripped.Recommendations = ""
		return &stripped, nil
	}
	return run, nil
}

// Update edits summary/recommendations on a ready or published run.
// Only the request's advisor may edit. Nil fields are left untouched.
func (p *Pipeline) Update(ctx context.Context, runID, callerID uuid.UUID, summary, recommendations *string) (*models.ConsultationMinutes, error) {
	run, _, err := p.loadRunForAdvisor(ctx, runID, callerID)
	if err != nil {
		return nil, err
	}

	if run.Status != models.MinutesReady && run.Status != models.MinutesPublished {
		return nil, errs.Conflict("minutes are %s, not editable", run.Status)
	}

	if _, err := p.db.UpdateMinutesContent(ctx, runID, summary, recommendations); err != nil {
		return nil, errs.External("failed to update minutes", err)
	}
	return p.db.GetMinutes(ctx, runID)
}

// Publish transitions ready -> published. Idempotent: a second call on
// a published run returns the run unchanged, same published_at.
func (p *Pipeline) Publish(ctx context.Context, runID, callerID uuid.UUID) (*models.ConsultationMinutes, error) {
	run, req, err := p.loadRunForAdvisor(ctx, runID, callerID)
	if err != nil {
		return nil, err
	}

	if run.Status == models.MinutesPublished {
		return run, nil
	}
	if run.Status != models.MinutesReady {
		return nil, errs.Conflict("cannot publish minutes in %s state", run.Status)
	}

	ok, err := p.db.PublishMinutes(ctx, runID, time.Now().UTC())
	if err != nil {
		return nil, errs.External("failed to publish minutes", err)
	}
	if !ok {
		// Lost a race; if the winner published, still a success.
		run, err = p.db.GetMinutes(ctx, runID)
		if err != nil {
			return nil, errs.External("failed to load minutes run", err)
		}
		if run != nil && run.Status == models.MinutesPublished {
			return run, nil
		}
		return nil, errs.Conflict("minutes state changed concurrently")
	}

	metrics.MinutesRuns.WithLabelValues("published").Inc()
	p.cacheStatus(ctx, req.ID, runID, models.MinutesPublished, "")
	p.logger.Info().Stringer("run_id", runID).Msg("minutes published")
	return p.db.GetMinutes(ctx, runID)
}

// loadRunForAdvisor loads a run and authorizes the request's advisor.
func (p *Pipeline) loadRunForAdvisor(ctx context.Context, runID, callerID uuid.UUID) (*models.ConsultationMinutes, *models.ConsultationRequest, error) {
	run, err := p.db.GetMinutes(ctx, runID)
	if err != nil {
		return nil, nil, errs.External("failed to load minutes run", err)
	}
	if run == nil {
		return nil, nil, errs.Authorization()
	}

	req, err := p.db.GetRequest(ctx, run.RequestID)
	if err != nil {
		return nil, nil, errs.External("failed to load request", err)
	}
	if req == nil || req.AdvisorID != callerID {
		return nil, nil, errs.Authorization()
	}
	return run, req, nil
}

// cacheStatus is the write-through half of the poll cache. Called from
// every status transition, never from reads.
func (p *Pipeline) cacheStatus(ctx context.Context, requestID, runID uuid.UUID, status models.MinutesStatus, processingError string) {
	if p.cache == nil {
		return
	}
	snap := store.MinutesStatusSnapshot{
		RunID:           runID,
		Status:          string(status),
		ProcessingError: processingError,
	}
	if err := p.cache.CacheMinutesStatus(ctx, requestID, snap); err != nil {
		p.logger.Debug().Err(err).Msg("status cache write failed")
	}
}
