// Package webhook applies engine callbacks to jobs.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"adstudio/internal/domain"
	"adstudio/internal/imagegen"
	"adstudio/internal/metrics"
	"adstudio/internal/validation"
)

const (
	defaultFailureCode    = domain.ErrorCodeUnknown
	defaultFailureMessage = "Unknown error"
	maxErrorMessageLen    = 2000
)

// Payload is the callback body posted by the engine.
type Payload struct {
	JobID          string        `json:"job_id" validate:"required,max=64"`
	Status         string        `json:"status" validate:"required,oneof=completed failed"`
	OutputImageURL string        `json:"output_image_url"`
	Image          string        `json:"image"`
	Error          *PayloadError `json:"error"`
	ExecutionID    string        `json:"execution_id"`
	ExecutionIDAlt string        `json:"executionId"`
	Timestamp      string        `json:"timestamp"`
	Signature      string        `json:"signature"`
}

type PayloadError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Ack describes how a callback was handled.
type Ack struct {
	JobID   string
	Status  domain.JobStatus
	Applied bool
	Message string
}

type Options struct {
	Secret    string
	Store     domain.JobRepository
	Extractor *imagegen.Extractor
	Validator *validation.Validator
	Metrics   *metrics.JobMetrics
	Logger    zerolog.Logger
}

// Receiver verifies engine callbacks and finalizes jobs through the store's
// conditional writes. Callbacks for finalized jobs are acknowledged without
// mutation.
type Receiver struct {
	secret    []byte
	store     domain.JobRepository
	extractor *imagegen.Extractor
	validator *validation.Validator
	metrics   *metrics.JobMetrics
	logger    zerolog.Logger
}

func NewReceiver(opts Options) *Receiver {
	extractor := opts.Extractor
	if extractor == nil {
		extractor = imagegen.NewExtractor(imagegen.DefaultPolicy())
	}
	v := opts.Validator
	if v == nil {
		v = validation.New()
	}
	return &Receiver{
		secret:    []byte(strings.TrimSpace(opts.Secret)),
		store:     opts.Store,
		extractor: extractor,
		validator: v,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
	}
}

// VerifiesSignatures reports whether a callback secret is configured.
func (r *Receiver) VerifiesSignatures() bool { return len(r.secret) > 0 }

// Receive handles one callback. signature is the X-Signature header value;
// when empty the payload's signature field is used instead.
func (r *Receiver) Receive(ctx context.Context, raw []byte, signature string) (Ack, error) {
	var payload Payload
	decodeErr := json.Unmarshal(raw, &payload)

	if r.VerifiesSignatures() {
		if strings.TrimSpace(signature) == "" && decodeErr == nil {
			signature = payload.Signature
		}
		if !r.validSignature(raw, signature) {
			r.metrics.Callback(metrics.CallbackRejected)
			return Ack{}, fmt.Errorf("%w: invalid callback signature", domain.ErrUnauthorized)
		}
	}

	if decodeErr != nil {
		r.metrics.Callback(metrics.CallbackRejected)
		return Ack{}, fmt.Errorf("%w: malformed callback body", domain.ErrValidation)
	}
	payload.JobID = strings.TrimSpace(payload.JobID)
	payload.Status = strings.ToLower(strings.TrimSpace(payload.Status))
	if err := r.validator.Struct(payload); err != nil {
		r.metrics.Callback(metrics.CallbackRejected)
		return Ack{}, err
	}

	job, err := r.store.GetByID(ctx, payload.JobID)
	if err != nil {
		r.metrics.Callback(metrics.CallbackRejected)
		return Ack{}, err
	}
	log := r.logger.With().Str("job_id", job.ID).Str("callback_status", payload.Status).Logger()
	if job.Status.Terminal() {
		log.Info().Str("status", string(job.Status)).Msg("callback for finalized job ignored")
		r.metrics.Callback(metrics.CallbackDuplicate)
		return finalizedAck(job), nil
	}

	var updated *domain.Job
	switch domain.JobStatus(payload.Status) {
	case domain.JobStatusCompleted:
		output := strings.TrimSpace(payload.OutputImageURL)
		if output == "" && strings.TrimSpace(payload.Image) != "" {
			output = r.extractor.Normalize(strings.TrimSpace(payload.Image))
		}
		if output == "" {
			r.metrics.Callback(metrics.CallbackRejected)
			return Ack{}, fmt.Errorf("%w: output_image_url is required for completed jobs", domain.ErrValidation)
		}
		updated, err = r.store.Complete(ctx, job.ID, output, payload.executionID())
	default:
		code, message := defaultFailureCode, defaultFailureMessage
		if payload.Error != nil {
			if c := strings.TrimSpace(payload.Error.Code); c != "" {
				code = c
			}
			if m := strings.TrimSpace(payload.Error.Message); m != "" {
				message = truncate(m, maxErrorMessageLen)
			}
		}
		updated, err = r.store.Fail(ctx, job.ID, code, message)
	}

	if errors.Is(err, domain.ErrJobFinalized) {
		current, lookupErr := r.store.GetByID(ctx, job.ID)
		if lookupErr != nil {
			return Ack{}, lookupErr
		}
		log.Info().Str("status", string(current.Status)).Msg("callback lost the finalization race")
		r.metrics.Callback(metrics.CallbackDuplicate)
		return finalizedAck(current), nil
	}
	if err != nil {
		return Ack{}, fmt.Errorf("apply callback: %w", err)
	}

	log.Info().Str("status", string(updated.Status)).Msg("job finalized by callback")
	r.metrics.Callback(metrics.CallbackApplied)
	r.metrics.Transition(string(updated.Status), "callback")
	return Ack{JobID: updated.ID, Status: updated.Status, Applied: true, Message: appliedMessage(updated.Status)}, nil
}

func (r *Receiver) validSignature(raw []byte, signature string) bool {
	signature = strings.TrimSpace(signature)
	signature = strings.TrimPrefix(signature, "sha256=")
	if signature == "" {
		return false
	}
	got, err := hex.DecodeString(strings.ToLower(signature))
	if err != nil {
		return false
	}
	return hmac.Equal(got, Sign(r.secret, raw))
}

// Sign computes the HMAC-SHA256 of body.
func Sign(secret, body []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return mac.Sum(nil)
}

// SignatureHeader renders the X-Signature value for body.
func SignatureHeader(secret string, body []byte) string {
	return "sha256=" + hex.EncodeToString(Sign([]byte(secret), body))
}

func (p Payload) executionID() string {
	if id := strings.TrimSpace(p.ExecutionID); id != "" {
		return id
	}
	return strings.TrimSpace(p.ExecutionIDAlt)
}

func finalizedAck(job *domain.Job) Ack {
	return Ack{JobID: job.ID, Status: job.Status, Applied: false, Message: "Job already finalized"}
}

func appliedMessage(status domain.JobStatus) string {
	if status == domain.JobStatusCompleted {
		return "Job completed"
	}
	return "Job failed"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
