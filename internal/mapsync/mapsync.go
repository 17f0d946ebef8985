// Package mapsync keeps the local probe map in step with the status service.
package mapsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/vietddude/localprobe/internal/codec/chunked"
	"github.com/vietddude/localprobe/internal/core/domain"
	"github.com/vietddude/localprobe/internal/infra/remote"
)

const (
	DefaultRetries    = 2
	DefaultRetryDelay = 5 * time.Second
)

var (
	ErrUnauthorized = errors.New("reporter token rejected")
	ErrInvalidData  = errors.New("invalid probe map payload")
	ErrExhausted    = errors.New("probe map sync attempts exhausted")
)

// Outcome describes how a sync attempt ended.
type Outcome int

const (
	OutcomeUpdated Outcome = iota
	OutcomeNotModified
	OutcomeUnauthorized
	OutcomeInvalidData
	OutcomeExhausted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUpdated:
		return "updated"
	case OutcomeNotModified:
		return "not_modified"
	case OutcomeUnauthorized:
		return "unauthorized"
	case OutcomeInvalidData:
		return "invalid_data"
	case OutcomeExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Synchronizer fetches probe map changes since the map's cursor.
type Synchronizer struct {
	client     *remote.Client
	retries    uint64
	retryDelay time.Duration
	logger     *slog.Logger
}

// Option customises a Synchronizer.
type Option func(*Synchronizer)

// WithRetry sets how many extra attempts follow a transient failure and how
// long to wait between them. delay must be positive.
func WithRetry(retries uint64, delay time.Duration) Option {
	return func(s *Synchronizer) {
		s.retries = retries
		s.retryDelay = delay
	}
}

func New(client *remote.Client, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		client:     client,
		retries:    DefaultRetries,
		retryDelay: DefaultRetryDelay,
		logger:     slog.Default().With("component", "mapsync"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync updates m in place. Date, Metrics and Services are replaced together
// on a 200 and left untouched otherwise. The cursor never moves backwards.
func (s *Synchronizer) Sync(ctx context.Context, m *domain.ProbeMap) (Outcome, error) {
	var (
		fresh       *domain.ProbeMap
		notModified bool
	)

	backoff := retry.WithMaxRetries(s.retries, retry.NewConstant(s.retryDelay))
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		var err error
		fresh, notModified, err = s.fetch(ctx, m.Date)
		if err != nil && !errors.Is(err, ErrUnauthorized) && !errors.Is(err, ErrInvalidData) {
			s.logger.Warn("probe map fetch failed", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return err
	})

	switch {
	case err == nil && notModified:
		s.logger.Debug("probe map has no changes")
		return OutcomeNotModified, nil

	case err == nil:
		if m.Date != nil && (fresh.Date == nil || *fresh.Date < *m.Date) {
			fresh.Date = m.Date
		}
		m.Date = fresh.Date
		m.Metrics = fresh.Metrics
		m.Services = fresh.Services
		s.logger.Info("probe map updated", "services", len(m.Services), "replicas", m.ReplicaCount())
		return OutcomeUpdated, nil

	case errors.Is(err, ErrUnauthorized):
		s.logger.Error("[important] your reporter token is invalid, please update it")
		return OutcomeUnauthorized, err

	case errors.Is(err, ErrInvalidData):
		s.logger.Warn("got invalid data for probe map", "error", err)
		return OutcomeInvalidData, err

	case ctx.Err() != nil:
		return OutcomeExhausted, fmt.Errorf("%w: %w", ErrExhausted, ctx.Err())

	default:
		s.logger.Warn("probe map sync gave up", "attempts", attempt, "error", err)
		return OutcomeExhausted, fmt.Errorf("%w: %w", ErrExhausted, err)
	}
}

// fetch performs one request. Transport failures and unexpected statuses are
// returned as plain errors; the caller decides which ones to retry.
func (s *Synchronizer) fetch(ctx context.Context, since *uint64) (*domain.ProbeMap, bool, error) {
	var query url.Values
	if since != nil {
		query = url.Values{"since": {strconv.FormatUint(*since, 10)}}
	}

	req, err := s.client.NewRequest(ctx, http.MethodGet, s.client.URL("probes", "local"), query, nil)
	if err != nil {
		return nil, false, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	s.logger.Debug("probe map response received", "status", resp.StatusCode)

	switch resp.StatusCode {
	case http.StatusOK:
		fresh, err := decode(resp)
		return fresh, false, err
	case http.StatusNotModified:
		return nil, true, nil
	case http.StatusUnauthorized:
		return nil, false, ErrUnauthorized
	default:
		return nil, false, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
}

func decode(resp *http.Response) (*domain.ProbeMap, error) {
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		return nil, fmt.Errorf("%w: content type %q", ErrInvalidData, ct)
	}
	if te := resp.Header.Get("Transfer-Encoding"); te != "" && !strings.EqualFold(te, "identity") && !strings.EqualFold(te, "chunked") {
		return nil, fmt.Errorf("%w: transfer encoding %q", ErrInvalidData, te)
	}

	body, err := chunked.ReadBody(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrInvalidData, err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidData)
	}

	var envelope domain.SyncEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidData, err)
	}
	return &envelope.Data, nil
}
