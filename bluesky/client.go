package bluesky

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/xrpc"
	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

var (
	ErrNotAuthenticated = errors.New("bluesky: not authenticated")
	ErrNotFound         = errors.New("bluesky: not found")
)

var (
	xrpcRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skyweb_xrpc_requests_total",
		Help: "XRPC requests by method and outcome",
	}, []string{"method", "outcome"})

	xrpcDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "skyweb_xrpc_request_duration_seconds",
		Help:    "Duration of XRPC requests including retries",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // Start at 10ms, double each bucket, 10 buckets
	}, []string{"method"})
)

// call runs fn with rate limiting and retries. Transient failures are retried
// with exponential backoff. An expired access token triggers a single session
// refresh before the call is tried again.
func call[T any](ctx context.Context, c *Client, method string, fn func(xc *xrpc.Client) (T, error)) (T, error) {
	var result T
	refreshed := false
	start := time.Now()
	defer func() {
		xrpcDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}()

	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		res, err := fn(c.client())
		if err == nil {
			result = res
			return nil
		}

		switch {
		case isExpiredToken(err) && !refreshed && c.Identity() != nil:
			refreshed = true
			if rerr := c.refresh(ctx); rerr != nil {
				return backoff.Permanent(fmt.Errorf("failed to refresh session: %w", rerr))
			}
			return err
		case isTransient(err):
			log.WithFields(log.Fields{
				"method": method,
				"error":  err,
			}).Warn("Transient XRPC failure, retrying")
			return err
		default:
			return backoff.Permanent(err)
		}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries), ctx))
	if err != nil {
		xrpcRequests.WithLabelValues(method, "error").Inc()
		return result, mapError(err)
	}

	xrpcRequests.WithLabelValues(method, "ok").Inc()
	return result, nil
}

func (c *Client) refresh(ctx context.Context) error {
	// refreshSession authenticates with the refresh token
	xc := c.client()
	if xc.Auth == nil {
		return ErrNotAuthenticated
	}
	auth := *xc.Auth
	auth.AccessJwt = auth.RefreshJwt
	xc.Auth = &auth

	out, err := atproto.ServerRefreshSession(ctx, xc)
	if err != nil {
		return err
	}

	c.setAuth(&xrpc.AuthInfo{
		AccessJwt:  out.AccessJwt,
		RefreshJwt: out.RefreshJwt,
		Handle:     out.Handle,
		Did:        out.Did,
	})

	log.WithFields(log.Fields{
		"did": out.Did,
	}).Info("Refreshed Bluesky session")
	return nil
}

func errorName(err error) string {
	var xe *xrpc.XRPCError
	if errors.As(err, &xe) {
		return xe.ErrStr
	}
	return ""
}

func statusCode(err error) int {
	var xe *xrpc.Error
	if errors.As(err, &xe) {
		return xe.StatusCode
	}
	return 0
}

func isExpiredToken(err error) bool {
	return errorName(err) == "ExpiredToken"
}

func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	status := statusCode(err)
	if status == 0 {
		// Network level failure, no response was received
		return true
	}
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

func mapError(err error) error {
	switch {
	case statusCode(err) == http.StatusUnauthorized:
		return fmt.Errorf("%w: %w", ErrNotAuthenticated, err)
	case statusCode(err) == http.StatusNotFound, errorName(err) == "NotFound":
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}
