// Package jobs drives generation jobs through their lifecycle.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/unicode/norm"

	"adstudio/internal/domain"
	"adstudio/internal/imagegen"
	"adstudio/internal/metrics"
	"adstudio/internal/storage"
	"adstudio/internal/validation"
)

// Settings is the immutable configuration of a Coordinator.
type Settings struct {
	DispatchMode  imagegen.Mode
	PublicBaseURL string
	Policy        imagegen.Policy
}

// CallbackURL is where the engine reports asynchronous results.
func (s Settings) CallbackURL() string {
	return strings.TrimRight(s.PublicBaseURL, "/") + "/v1/webhooks/engine"
}

type Options struct {
	Settings   Settings
	Store      domain.JobRepository
	Locator    storage.Locator
	Dispatcher imagegen.Dispatcher
	Validator  *validation.Validator
	Metrics    *metrics.JobMetrics
	Logger     zerolog.Logger
}

// CreateInput is the owner's request to generate an image.
type CreateInput struct {
	Instructions   string `json:"instructions" validate:"notblank,max=4000"`
	CharacterImage string `json:"character_image" validate:"image_ref"`
	ProductImage   string `json:"product_image" validate:"image_ref"`
}

// CreateResult is the state of a job when Create returns. Accepted is set
// when the engine has not produced a result yet and the job is processing.
type CreateResult struct {
	Job      *domain.Job
	Accepted bool
	Message  string
}

// ImageSource is a stored input image, either inline bytes or a remote URL.
type ImageSource struct {
	Redirect string
	Image    storage.InlineImage
}

const (
	msgAccepted        = "Generation started. The job will update when the engine reports back."
	msgStillProcessing = "Generation is still processing. The job will update in a few seconds."
)

// Coordinator owns every job transition except the ones made by engine
// callbacks. Races with callbacks are settled by the store's conditional
// writes; the loser reloads and reports the winner's state.
type Coordinator struct {
	settings   Settings
	store      domain.JobRepository
	locator    storage.Locator
	dispatcher imagegen.Dispatcher
	extractor  *imagegen.Extractor
	validator  *validation.Validator
	metrics    *metrics.JobMetrics
	logger     zerolog.Logger
}

func NewCoordinator(opts Options) *Coordinator {
	v := opts.Validator
	if v == nil {
		v = validation.New()
	}
	return &Coordinator{
		settings:   opts.Settings,
		store:      opts.Store,
		locator:    opts.Locator,
		dispatcher: opts.Dispatcher,
		extractor:  imagegen.NewExtractor(opts.Settings.Policy),
		validator:  v,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
	}
}

func (c *Coordinator) Settings() Settings { return c.settings }

// Create stores a pending job, dispatches it and applies the dispatch
// outcome. Engine and connection failures are persisted on the job and
// returned wrapped in domain.ErrEngine / domain.ErrConnection.
func (c *Coordinator) Create(ctx context.Context, owner string, in CreateInput) (*CreateResult, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, domain.ErrUnauthorized
	}
	in = normalizeInput(in)
	if err := c.validator.Struct(in); err != nil {
		return nil, err
	}

	job, err := c.store.Create(ctx, domain.NewJob{
		UserID:         owner,
		Instructions:   in.Instructions,
		CharacterImage: in.CharacterImage,
		ProductImage:   in.ProductImage,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create job: %v", domain.ErrInternal, err)
	}
	c.metrics.JobCreated()

	// From here on the job exists and must reach running or a terminal
	// state even if the caller goes away.
	wctx := context.WithoutCancel(ctx)
	log := c.logger.With().Str("job_id", job.ID).Str("user_id", owner).Logger()
	log.Info().Int("instructions_len", len(in.Instructions)).Msg("job created")

	refs, err := c.locator.Locate(wctx, job)
	if err != nil {
		log.Error().Err(err).Msg("locate input images")
		if _, ferr := c.fail(wctx, job.ID, domain.ErrorCodeInternal, "Could not prepare the input images"); ferr != nil {
			log.Error().Err(ferr).Msg("persist locator failure")
		}
		return nil, fmt.Errorf("%w: locate input images", domain.ErrInternal)
	}

	if err := c.store.RecordDispatch(wctx, job.ID); err != nil {
		log.Warn().Err(err).Msg("record dispatch attempt")
	}
	mode := c.settings.DispatchMode
	start := time.Now()
	outcome := c.dispatcher.Dispatch(wctx, imagegen.DispatchRequest{
		JobID:          job.ID,
		Instructions:   job.Instructions,
		CharacterImage: refs.Character,
		ProductImage:   refs.Product,
		CallbackURL:    c.settings.CallbackURL(),
	}, mode)
	c.metrics.Dispatched(mode.String(), outcome.Kind.String(), time.Since(start))
	log = log.With().Str("outcome", outcome.Kind.String()).Logger()

	switch outcome.Kind {
	case imagegen.OutcomeAccepted:
		log.Info().Msg("engine accepted job")
		return c.running(wctx, job.ID, true, msgAccepted)
	case imagegen.OutcomeTimeout:
		log.Info().Msg("engine still processing after bounded wait")
		return c.running(wctx, job.ID, true, msgStillProcessing)
	case imagegen.OutcomeResult:
		return c.applyResult(wctx, log, job.ID, outcome.Body)
	case imagegen.OutcomeEngineError:
		log.Warn().Err(outcome.Err).Int("engine_status", outcome.StatusCode).Msg("engine returned an error")
		res, err := c.fail(wctx, job.ID, domain.ErrorCodeEngine, fmt.Sprintf("Engine responded with HTTP %d", outcome.StatusCode))
		if err != nil || res.Job.Status != domain.JobStatusFailed {
			return res, err
		}
		return nil, fmt.Errorf("%w: http %d", domain.ErrEngine, outcome.StatusCode)
	default:
		log.Warn().Err(outcome.Err).Msg("engine unreachable")
		res, err := c.fail(wctx, job.ID, domain.ErrorCodeConnection, "Could not reach the generation engine")
		if err != nil || res.Job.Status != domain.JobStatusFailed {
			return res, err
		}
		return nil, domain.ErrConnection
	}
}

func (c *Coordinator) applyResult(ctx context.Context, log zerolog.Logger, jobID string, body []byte) (*CreateResult, error) {
	var image, executionID string
	if root, err := imagegen.ParseValue(body); err == nil {
		if found, ok := c.extractor.Find(root); ok {
			image = c.extractor.Normalize(found)
		}
		executionID = imagegen.ExecutionID(root)
	} else if len(body) > 0 {
		log.Debug().Err(err).Msg("engine response is not json")
	}

	if image == "" {
		log.Info().Msg("engine response carried no image; waiting for callback")
		return c.running(ctx, jobID, false, "")
	}
	job, err := c.store.Complete(ctx, jobID, image, executionID)
	switch {
	case err == nil:
		log.Info().Int("output_len", len(image)).Msg("job completed from engine response")
		c.metrics.Transition(string(domain.JobStatusCompleted), "sync")
		return &CreateResult{Job: job}, nil
	case errors.Is(err, domain.ErrJobFinalized):
		return c.current(ctx, jobID, false, "")
	}
	return nil, fmt.Errorf("%w: complete job: %v", domain.ErrInternal, err)
}

// running moves the job to running unless a callback finalized it first.
func (c *Coordinator) running(ctx context.Context, jobID string, accepted bool, msg string) (*CreateResult, error) {
	job, err := c.store.MarkRunning(ctx, jobID)
	switch {
	case err == nil:
		c.metrics.Transition(string(domain.JobStatusRunning), "sync")
		return &CreateResult{Job: job, Accepted: accepted, Message: msg}, nil
	case errors.Is(err, domain.ErrJobFinalized), errors.Is(err, domain.ErrTransitionRejected):
		return c.current(ctx, jobID, accepted, msg)
	}
	return nil, fmt.Errorf("%w: mark job running: %v", domain.ErrInternal, err)
}

func (c *Coordinator) fail(ctx context.Context, jobID, code, msg string) (*CreateResult, error) {
	job, err := c.store.Fail(ctx, jobID, code, msg)
	switch {
	case err == nil:
		c.metrics.Transition(string(domain.JobStatusFailed), "sync")
		return &CreateResult{Job: job}, nil
	case errors.Is(err, domain.ErrJobFinalized):
		return c.current(ctx, jobID, false, "")
	}
	return nil, fmt.Errorf("%w: fail job: %v", domain.ErrInternal, err)
}

func (c *Coordinator) current(ctx context.Context, jobID string, accepted bool, msg string) (*CreateResult, error) {
	job, err := c.store.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("%w: reload job: %v", domain.ErrInternal, err)
	}
	if job.Status.Terminal() {
		accepted, msg = false, ""
	}
	return &CreateResult{Job: job, Accepted: accepted, Message: msg}, nil
}

func (c *Coordinator) Get(ctx context.Context, jobID, owner string) (*domain.Job, error) {
	return c.store.Get(ctx, strings.TrimSpace(jobID), owner)
}

func (c *Coordinator) List(ctx context.Context, owner string) ([]domain.Job, error) {
	return c.store.List(ctx, owner)
}

func (c *Coordinator) Delete(ctx context.Context, jobID, owner string) error {
	return c.store.Delete(ctx, strings.TrimSpace(jobID), owner)
}

// ImageFor resolves a stored input image for the unauthenticated fetch
// endpoint used by the engine.
func (c *Coordinator) ImageFor(ctx context.Context, jobID, slot string) (ImageSource, error) {
	job, err := c.store.GetByID(ctx, strings.TrimSpace(jobID))
	if err != nil {
		return ImageSource{}, err
	}
	s, ok := domain.ParseImageSlot(slot)
	if !ok {
		return ImageSource{}, fmt.Errorf("%w: image slot must be character or product", domain.ErrValidation)
	}
	stored := strings.TrimSpace(job.Image(s))
	if storage.IsRemote(stored) {
		return ImageSource{Redirect: stored}, nil
	}
	img, err := storage.ParseDataURI(stored)
	if err != nil {
		return ImageSource{}, fmt.Errorf("%w: decode stored %s image: %v", domain.ErrInternal, s, err)
	}
	return ImageSource{Image: img}, nil
}

func normalizeInput(in CreateInput) CreateInput {
	return CreateInput{
		Instructions:   strings.TrimSpace(norm.NFC.String(in.Instructions)),
		CharacterImage: strings.TrimSpace(in.CharacterImage),
		ProductImage:   strings.TrimSpace(in.ProductImage),
	}
}
