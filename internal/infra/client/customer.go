package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/boddenberg/account-ms/internal/domain"
	"github.com/boddenberg/account-ms/internal/infra/observability"
	"github.com/boddenberg/account-ms/internal/infra/resilience"
	"github.com/boddenberg/account-ms/internal/port"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var tracer = otel.Tracer("client")

const (
	directoryService = "customer-directory"
	ownerCache       = "owner"

	// lookupTimeout bounds a shared lookup, retries included.
	lookupTimeout = 30 * time.Second
)

// errOwnerAbsent is the directory's "no such customer" answer. It is not a
// failure and never trips the breaker.
var errOwnerAbsent = errors.New("owner absent")

// CustomerClient asks the customer registry whether an owner exists.
// Implements port.OwnerDirectory.
type CustomerClient struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
	bulkhead   *resilience.Bulkhead
	known      port.Cache[bool]
	group      singleflight.Group
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewCustomerClient creates a CustomerClient. Positive answers are kept in
// known; absent owners are always re-checked.
func NewCustomerClient(httpClient *http.Client, baseURL string, cfg resilience.Config, known port.Cache[bool], metrics *observability.Metrics, logger *zap.Logger) *CustomerClient {
	return &CustomerClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		cb: resilience.NewCircuitBreaker(directoryService, func(err error) bool {
			return !errors.Is(err, errOwnerAbsent)
		}, logger),
		cfg:      cfg,
		bulkhead: resilience.NewBulkhead(cfg.MaxConcurrency),
		known:    known,
		metrics:  metrics,
		logger:   logger,
	}
}

// Exists reports whether the owner is registered.
// 2xx means present, any 4xx means absent, everything else is an error.
func (c *CustomerClient) Exists(ctx context.Context, ownerID string) (bool, error) {
	ctx, span := tracer.Start(ctx, "CustomerClient.Exists")
	defer span.End()
	span.SetAttributes(attribute.String("customer.id", ownerID))

	if ok, hit := c.known.Get(ownerID); hit && ok {
		c.metrics.IncrCacheHit(ownerCache)
		return true, nil
	}
	c.metrics.IncrCacheMiss(ownerCache)

	// The shared lookup is detached from this caller, so one cancelled
	// request does not fail everyone waiting on the same owner.
	ch := c.group.DoChan(ownerID, func() (any, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()
		exists, err := c.lookup(flightCtx, ownerID)
		if err == nil && exists {
			c.known.Set(ownerID, true)
		}
		return exists, err
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return false, &domain.ErrExternalService{Service: directoryService, Err: ctx.Err()}
	}
	span.SetAttributes(attribute.Bool("singleflight.shared", res.Shared))

	if err := res.Err; err != nil {
		c.metrics.IncrExternalError(directoryService)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return false, &domain.ErrCircuitOpen{Service: directoryService}
		}
		return false, &domain.ErrExternalService{Service: directoryService, Err: err}
	}
	return res.Val.(bool), nil
}

func (c *CustomerClient) lookup(ctx context.Context, ownerID string) (bool, error) {
	err := c.bulkhead.Do(ctx, func() error {
		_, err := c.cb.Execute(func() (any, error) {
			return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
				return c.fetch(ctx, ownerID)
			})
		})
		return err
	})

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errOwnerAbsent):
		c.logger.Debug("customer directory: owner not found", zap.String("customer_id", ownerID))
		return false, nil
	default:
		c.logger.Error("customer directory: lookup failed",
			zap.String("customer_id", ownerID),
			zap.Error(err),
		)
		return false, err
	}
}

func (c *CustomerClient) fetch(ctx context.Context, ownerID string) error {
	endpoint := fmt.Sprintf("%s/customers/%s", c.baseURL, url.PathEscape(ownerID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return resilience.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return resilience.Permanent(errOwnerAbsent)
	default:
		return fmt.Errorf("customer API returned status %d", resp.StatusCode)
	}
}
