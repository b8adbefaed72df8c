package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultSyncTimeout  = 15 * time.Second
	defaultAsyncTimeout = 2 * time.Minute
	maxResponseBytes    = 32 << 20
	errorSnippetBytes   = 512
)

// Mode selects how long Dispatch waits for the engine.
type Mode int

const (
	// ModeAsync returns once the request is on the wire.
	ModeAsync Mode = iota
	// ModeBoundedWait waits for the engine response up to the sync timeout.
	ModeBoundedWait
)

func (m Mode) String() string {
	if m == ModeAsync {
		return "async"
	}
	return "bounded_wait"
}

// OutcomeKind classifies a dispatch attempt.
type OutcomeKind int

const (
	OutcomeAccepted OutcomeKind = iota
	OutcomeResult
	OutcomeEngineError
	OutcomeTimeout
	OutcomeConnectionError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeResult:
		return "result"
	case OutcomeEngineError:
		return "engine_error"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeConnectionError:
		return "connection_error"
	}
	return "unknown"
}

// Outcome is the classified result of one dispatch.
type Outcome struct {
	Kind       OutcomeKind
	StatusCode int
	Body       []byte
	Err        error
}

// DispatchRequest is the payload posted to the engine webhook.
type DispatchRequest struct {
	JobID          string `json:"job_id"`
	Instructions   string `json:"instructions"`
	CharacterImage string `json:"character_image"`
	ProductImage   string `json:"product_image"`
	CallbackURL    string `json:"callback_url,omitempty"`
}

// Dispatcher sends jobs to the engine.
type Dispatcher interface {
	Dispatch(ctx context.Context, req DispatchRequest, mode Mode) Outcome
}

type EngineOptions struct {
	WebhookURL   string
	APIKey       string
	HTTPClient   *http.Client
	SyncTimeout  time.Duration
	AsyncTimeout time.Duration
	Logger       zerolog.Logger
}

// EngineClient posts jobs to the generation workflow webhook. It never
// touches job state; callers map the Outcome onto transitions.
type EngineClient struct {
	httpClient   *http.Client
	webhookURL   string
	token        string
	syncTimeout  time.Duration
	asyncTimeout time.Duration
	logger       zerolog.Logger
}

func NewEngineClient(opts EngineOptions) *EngineClient {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	syncTimeout := opts.SyncTimeout
	if syncTimeout <= 0 {
		syncTimeout = defaultSyncTimeout
	}
	asyncTimeout := opts.AsyncTimeout
	if asyncTimeout <= 0 {
		asyncTimeout = defaultAsyncTimeout
	}
	return &EngineClient{
		httpClient:   client,
		webhookURL:   strings.TrimSpace(opts.WebhookURL),
		token:        strings.TrimSpace(opts.APIKey),
		syncTimeout:  syncTimeout,
		asyncTimeout: asyncTimeout,
		logger:       opts.Logger,
	}
}

// Dispatch posts req to the engine. Cancellation of ctx does not abort the
// dispatch; only the configured timeouts bound it.
func (c *EngineClient) Dispatch(ctx context.Context, req DispatchRequest, mode Mode) Outcome {
	if c == nil || c.webhookURL == "" {
		return Outcome{Kind: OutcomeConnectionError, Err: errors.New("engine webhook url not configured")}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return Outcome{Kind: OutcomeConnectionError, Err: fmt.Errorf("encode dispatch: %w", err)}
	}
	detached := context.WithoutCancel(ctx)
	if mode == ModeAsync {
		return c.dispatchAsync(detached, req.JobID, body)
	}
	return c.dispatchBounded(detached, body)
}

func (c *EngineClient) newRequest(ctx context.Context, body []byte) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}
	return httpReq, nil
}

func (c *EngineClient) dispatchBounded(ctx context.Context, body []byte) Outcome {
	ctx, cancel := context.WithTimeout(ctx, c.syncTimeout)
	defer cancel()

	httpReq, err := c.newRequest(ctx, body)
	if err != nil {
		return Outcome{Kind: OutcomeConnectionError, Err: err}
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return transportOutcome(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		out := transportOutcome(err)
		out.StatusCode = resp.StatusCode
		return out
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Outcome{
			Kind:       OutcomeEngineError,
			StatusCode: resp.StatusCode,
			Body:       data,
			Err:        fmt.Errorf("engine: http %d: %s", resp.StatusCode, snippet(data)),
		}
	}
	return Outcome{Kind: OutcomeResult, StatusCode: resp.StatusCode, Body: data}
}

// dispatchAsync returns as soon as the request has been written. The
// response is drained in the background under the async timeout.
func (c *EngineClient) dispatchAsync(ctx context.Context, jobID string, body []byte) Outcome {
	ctx, cancel := context.WithTimeout(ctx, c.asyncTimeout)

	wrote := make(chan error, 1)
	trace := &httptrace.ClientTrace{
		WroteRequest: func(info httptrace.WroteRequestInfo) {
			select {
			case wrote <- info.Err:
			default:
			}
		},
	}
	httpReq, err := c.newRequest(httptrace.WithClientTrace(ctx, trace), body)
	if err != nil {
		cancel()
		return Outcome{Kind: OutcomeConnectionError, Err: err}
	}

	done := make(chan error, 1)
	go func() {
		defer cancel()
		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			done <- err
			c.logger.Warn().Err(err).Str("job_id", jobID).Msg("engine async dispatch ended without response")
			return
		}
		defer resp.Body.Close()
		done <- nil
		n, _ := io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		c.logger.Debug().Str("job_id", jobID).Int("status", resp.StatusCode).Int64("bytes", n).Msg("engine async response drained")
	}()

	select {
	case err := <-wrote:
		if err != nil {
			return Outcome{Kind: OutcomeConnectionError, Err: err}
		}
		return Outcome{Kind: OutcomeAccepted}
	case err := <-done:
		if err != nil {
			return Outcome{Kind: OutcomeConnectionError, Err: err}
		}
		return Outcome{Kind: OutcomeAccepted}
	}
}

func transportOutcome(err error) Outcome {
	if isTimeout(err) {
		return Outcome{Kind: OutcomeTimeout, Err: err}
	}
	return Outcome{Kind: OutcomeConnectionError, Err: err}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func snippet(data []byte) string {
	s := strings.TrimSpace(string(data))
	if len(s) > errorSnippetBytes {
		s = s[:errorSnippetBytes] + "..."
	}
	return s
}
