// Package telemetry is the client of the remote telemetry API.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/mpapenbr/lapsync/log"
	"github.com/mpapenbr/lapsync/pkg/model"
)

// max number of body bytes kept in a FetchError
const maxErrorBody = 4096

var ErrInvalidBaseURL = errors.New("invalid base url")

// FetchError is returned for any non-2xx response.
type FetchError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: status %d: %s", e.URL, e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a FetchError with status 404.
func IsNotFound(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.StatusCode == http.StatusNotFound
}

type Client struct {
	base    *url.URL
	http    *http.Client
	l       *log.Logger
	tracer  trace.Tracer
	tol     float64
	byIndex bool
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

// WithTimeout limits each request. Zero keeps requests unbounded. The
// timeout is set on a copy, a client passed by WithHTTPClient is not changed.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		hc := *cl.http
		hc.Timeout = d
		cl.http = &hc
	}
}

func WithLogger(l *log.Logger) Option {
	return func(cl *Client) {
		cl.l = l
	}
}

// WithIndexPairing pairs the coordinate channels position by position
// instead of by timestamp. Only useful if both channels are recorded with
// the same sample times.
func WithIndexPairing() Option {
	return func(cl *Client) {
		cl.byIndex = true
	}
}

// WithPairTolerance sets the max time difference accepted when pairing the
// latitude and longitude channels.
func WithPairTolerance(tol float64) Option {
	return func(cl *Client) {
		cl.tol = tol
	}
}

func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, baseURL)
	}
	ret := &Client{
		base:   u,
		http:   &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		l:      log.Default().Named("telemetry"),
		tracer: otel.Tracer("lapsync.telemetry"),
		tol:    DefaultPairTolerance,
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret, nil
}

// GetSession loads the session metadata.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	ctx, span := c.tracer.Start(ctx, "telemetry.GetSession",
		trace.WithAttributes(attribute.String("session", sessionID)))
	defer span.End()

	var ret model.Session
	if err := c.get(ctx, c.endpoint("Session", sessionID), &ret); err != nil {
		recordError(span, err)
		return nil, err
	}
	if ret.ID == "" {
		ret.ID = sessionID
	}
	return &ret, nil
}

// GetChannelData loads the samples of one channel for one lap. The result is
// ordered by time.
//
//nolint:whitespace // can't make both editor and linter happy
func (c *Client) GetChannelData(
	ctx context.Context, sessionID string, lap int, channel string,
) ([]model.ChannelSample, error) {
	ctx, span := c.tracer.Start(ctx, "telemetry.GetChannelData",
		trace.WithAttributes(
			attribute.String("session", sessionID),
			attribute.Int("lap", lap),
			attribute.String("channel", channel)))
	defer span.End()

	var ret []model.ChannelSample
	if err := c.get(ctx,
		c.endpoint("Session", "data", sessionID, strconv.Itoa(lap), channel),
		&ret); err != nil {
		recordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("samples", len(ret)))
	return SortSamples(ret), nil
}

// GetTrack loads both coordinate channels concurrently and pairs them.
//
//nolint:whitespace // can't make both editor and linter happy
func (c *Client) GetTrack(
	ctx context.Context, sessionID string, lap int, latChannel, lngChannel string,
) ([]model.TrackSample, error) {
	var lat, lng []model.ChannelSample
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		lat, err = c.GetChannelData(gCtx, sessionID, lap, latChannel)
		return err
	})
	g.Go(func() (err error) {
		lng, err = c.GetChannelData(gCtx, sessionID, lap, lngChannel)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var ret []model.TrackSample
	if c.byIndex {
		ret = PairTrackByIndex(lat, lng)
	} else {
		ret = PairTrack(lat, lng, c.tol)
	}
	if dropped := max(len(lat), len(lng)) - len(ret); dropped > 0 {
		c.l.Debug("unpaired coordinate samples dropped",
			log.String("session", sessionID), log.Int("lap", lap),
			log.Int("lat", len(lat)), log.Int("lng", len(lng)),
			log.Int("dropped", dropped))
	}
	return ret, nil
}

func (c *Client) endpoint(segments ...string) string {
	u := *c.base
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	u.Path = c.base.Path + "/" + strings.Join(segments, "/")
	u.RawPath = c.base.EscapedPath() + "/" + strings.Join(escaped, "/")
	return u.String()
}

func (c *Client) get(ctx context.Context, target string, v any) error {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &FetchError{
			URL:        target,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", target, err)
	}
	c.l.Debug("fetched", log.String("url", target), log.Elapsed(start))
	return nil
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
