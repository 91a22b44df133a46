// Package fabric implements HTTP clients for the fabric services: firewall
// (fwapi), VMs (vmapi), networks (napi), images (imgapi), packages (papi) and
// the workflow job API.
package fabric

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/zinrai/fabric-portal/internal/domain"
	"github.com/zinrai/fabric-portal/internal/log"
	"github.com/zinrai/fabric-portal/internal/metrics"
)

// Options configures every fabric client.
type Options struct {
	Timeout    time.Duration
	RateLimit  float64 // requests per second; zero disables limiting
	Burst      int
	HTTPClient *http.Client
	Metrics    *metrics.Registry
}

type client struct {
	service string
	baseURL string
	http    *http.Client
	timeout time.Duration
	limiter *rate.Limiter
	metrics *metrics.Registry
}

func newClient(service, baseURL string, opts Options) *client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return &client{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		timeout: opts.Timeout,
		limiter: limiter,
		metrics: opts.Metrics,
	}
}

// do sends one request and decodes a JSON response into out when out is not
// nil. Failures are classified into the domain error taxonomy.
func (c *client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	logger := log.G(ctx).WithFields(logrus.Fields{
		"service": c.service,
		"method":  method,
		"path":    path,
	})

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return errors.Wrapf(domain.ErrUnavailable, "%s: %v", c.service, err)
		}
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.Wrapf(err, "failed to encode %s request", c.service)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return errors.Wrapf(err, "failed to build %s request", c.service)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	logger.Debug("sending fabric request")
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observe(method, "error", start)
		logger.WithError(err).Error("fabric request failed")
		return errors.Wrapf(domain.ErrUnavailable, "%s: %v", c.service, err)
	}
	defer resp.Body.Close()
	c.observe(method, strconv.Itoa(resp.StatusCode), start)

	if resp.StatusCode >= http.StatusBadRequest {
		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil && interrupted(ctx, err) {
			logger.WithError(err).Error("fabric response interrupted")
			return errors.Wrapf(domain.ErrUnavailable, "%s: %v", c.service, err)
		}
		cerr := classify(c.service, resp.StatusCode, data)
		logger.WithField("status", resp.StatusCode).WithError(cerr).Warn("fabric request rejected")
		return cerr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if interrupted(ctx, err) {
			logger.WithError(err).Error("fabric response interrupted")
			return errors.Wrapf(domain.ErrUnavailable, "%s: %v", c.service, err)
		}
		return errors.Wrapf(err, "failed to decode %s response", c.service)
	}
	return nil
}

// interrupted reports whether reading a response body failed because the
// service stopped answering, as opposed to answering with something malformed.
func interrupted(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func (c *client) observe(method, code string, start time.Time) {
	if c.metrics != nil {
		c.metrics.ObserveFabric(c.service, method, code, start)
	}
}
