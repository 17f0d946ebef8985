// Package report delivers replica classifications to the status service.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/vietddude/localprobe/internal/core/domain"
	"github.com/vietddude/localprobe/internal/infra/remote"
)

const (
	DefaultRetries    = 2
	DefaultRetryDelay = 5 * time.Second
)

// Payload is the body of a status report.
type Payload struct {
	ReplicaID string        `json:"replica_id"`
	Health    domain.Status `json:"health"`
	Interval  uint64        `json:"interval"`
}

// Reporter posts one status per replica and cycle.
type Reporter struct {
	client     *remote.Client
	retries    uint64
	retryDelay time.Duration
	logger     *slog.Logger
}

// Option customises a Reporter.
type Option func(*Reporter)

// WithRetry sets the number of extra attempts and the delay between them.
// delay must be positive.
func WithRetry(retries uint64, delay time.Duration) Option {
	return func(r *Reporter) {
		r.retries = retries
		r.retryDelay = delay
	}
}

func New(client *remote.Client, opts ...Option) *Reporter {
	r := &Reporter{
		client:     client,
		retries:    DefaultRetries,
		retryDelay: DefaultRetryDelay,
		logger:     slog.Default().With("component", "report"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Report sends the status of replica. Every failure is retried; the last
// error is returned once attempts run out.
func (r *Reporter) Report(ctx context.Context, service, node string, replica domain.ReplicaURL, status domain.Status, interval time.Duration) error {
	body, err := json.Marshal(Payload{
		ReplicaID: replica.Raw(),
		Health:    status,
		Interval:  uint64(interval / time.Second),
	})
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	url := r.client.URL("report", service, node)
	attempt := 0
	backoff := retry.WithMaxRetries(r.retries, retry.NewConstant(r.retryDelay))

	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		r.logger.Info("running status report attempt", "attempt", attempt, "service", service, "node", node, "replica", replica.Raw())
		err := r.post(ctx, url, body)
		if err != nil {
			r.logger.Warn("status report attempt failed", "attempt", attempt, "service", service, "node", node, "replica", replica.Raw(), "error", err)
			attempt++
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("report %s/%s %s: %w", service, node, replica.Raw(), err)
	}
	return nil
}

func (r *Reporter) post(ctx context.Context, url string, body []byte) error {
	req, err := r.client.NewRequest(ctx, http.MethodPost, url, nil, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	r.logger.Debug("reported status", "path", req.URL.Path)
	return nil
}
