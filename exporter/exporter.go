package exporter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/alesr/bucketpool"
)

// Error is a custom error type.
type Error struct {
	Message string `json:"message"`
}

// Error implements the error interface.
func (e Error) Error() string {
	return e.Message
}

var errInputChannelClosed = Error{Message: "input channel closed"}

// maxErrorBody bounds how much of a rejected response is decoded.
const maxErrorBody = 4 << 10

// Source is anything that can report pool metrics, such as an *ArrayPool.
type Source interface {
	Metrics() bucketpool.Metrics
}

// Report is the payload posted for each snapshot.
type Report struct {
	Metrics bucketpool.Metrics `json:"metrics"`
	Delta   Delta              `json:"delta"`
}

// Delta holds how much the counters of a pool grew since the last snapshot
// the endpoint accepted. The first report of a pool counts from zero.
type Delta struct {
	Since         time.Time `json:"since,omitzero"`
	Rented        uint64    `json:"rented"`
	Allocated     uint64    `json:"allocated"`
	Returned      uint64    `json:"returned"`
	Dropped       uint64    `json:"dropped"`
	TrimmedArrays uint64    `json:"trimmed_arrays"`
	TrimmedBytes  uint64    `json:"trimmed_bytes"`
	// HitRate is the share of rents in the interval served from a pooled
	// array, or zero when nothing was rented.
	HitRate float64 `json:"hit_rate"`
}

// Exporter posts pool metric reports to a remote endpoint. Run must not be
// called concurrently.
type Exporter struct {
	baseURL *url.URL
	cli     *http.Client
	inputCh <-chan bucketpool.Metrics
	now     func() time.Time

	last   map[string]bucketpool.Metrics
	lastAt map[string]time.Time
}

// NewExporter creates a new Exporter instance.
func NewExporter(baseURL string, httpCli *http.Client, inputCh <-chan bucketpool.Metrics) (*Exporter, error) {
	if baseURL == "" || httpCli == nil || inputCh == nil {
		return nil, errors.New("invalid arguments")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	return &Exporter{
		baseURL: u,
		cli:     httpCli,
		inputCh: inputCh,
		now:     time.Now,
		last:    make(map[string]bucketpool.Metrics),
		lastAt:  make(map[string]time.Time),
	}, nil
}

// Run waits for the next snapshot and posts it as a Report. The baseline
// for the next delta only moves once the endpoint accepts a report, so a
// failed export is folded into the following one.
func (e *Exporter) Run(ctx context.Context) error {
	select {
	case m, ok := <-e.inputCh:
		if !ok {
			return errInputChannelClosed
		}
		now := e.now()
		if err := e.send(ctx, e.report(m)); err != nil {
			return err
		}
		e.last[m.ID] = m
		e.lastAt[m.ID] = now
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Exporter) report(m bucketpool.Metrics) Report {
	prev := e.last[m.ID]
	d := Delta{
		Since:         e.lastAt[m.ID],
		Rented:        growth(prev.Rented, m.Rented),
		Allocated:     growth(prev.Allocated, m.Allocated),
		Returned:      growth(prev.Returned, m.Returned),
		Dropped:       growth(prev.Dropped, m.Dropped),
		TrimmedArrays: growth(prev.TrimmedArrays, m.TrimmedArrays),
		TrimmedBytes:  growth(prev.TrimmedBytes, m.TrimmedBytes),
	}
	hits := growth(prev.LocalHits, m.LocalHits) + growth(prev.SharedHits, m.SharedHits)
	if d.Rented > 0 {
		d.HitRate = min(float64(hits)/float64(d.Rented), 1)
	}
	return Report{Metrics: m, Delta: d}
}

// growth tolerates counters read out of order under concurrent use.
func growth(prev, cur uint64) uint64 {
	if cur < prev {
		return 0
	}
	return cur - prev
}

func (e *Exporter) send(ctx context.Context, r Report) error {
	endpoint, err := url.JoinPath(e.baseURL.String(), "metrics")
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}

	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("could not marshal report: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.cli.Do(req)
	if err != nil {
		return fmt.Errorf("could not send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		var remote Error
		if err := json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&remote); err == nil && remote.Message != "" {
			return fmt.Errorf("unexpected status code: %d: %w", resp.StatusCode, remote)
		}
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return nil
}

// Snapshots sends src.Metrics() every interval until ctx is done, then
// closes the returned channel. A snapshot is skipped if the previous one
// has not been received yet.
func Snapshots(ctx context.Context, src Source, interval time.Duration) <-chan bucketpool.Metrics {
	out := make(chan bucketpool.Metrics, 1)
	go func() {
		defer close(out)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				select {
				case out <- src.Metrics():
				default:
				}
			}
		}
	}()
	return out
}
