package service

import (
	"context"
	"sync"
	"time"

	"github.com/boddenberg/bankdash-bfa-go/internal/domain"
	"github.com/boddenberg/bankdash-bfa-go/internal/infra/cache"
	"github.com/boddenberg/bankdash-bfa-go/internal/infra/observability"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var queryTracer = otel.Tracer("service/query")

// FetchFunc loads the value of one cache key from the bank.
type FetchFunc func(ctx context.Context) (any, error)

// Status is what a consumer renders for a key.
type Status string

const (
	// StatusLoading: no usable data yet.
	StatusLoading Status = "loading"
	// StatusSuccess: fresh data present.
	StatusSuccess Status = "success"
	// StatusError: the last fetch failed; the last known data may still be present.
	StatusError Status = "error"
	// StatusRefreshing: data present while a refetch is pending or in flight.
	StatusRefreshing Status = "refreshing"
)

// View is a consumer's snapshot of one key.
type View struct {
	Key         cache.Key
	Data        any
	HasData     bool
	Status      Status
	Err         domain.DomainError
	UpdatedAt   time.Time
	Placeholder bool // Data belongs to a previously displayed key
}

// DeriveStatus maps a cache entry to the status a consumer renders. Loading
// never hides existing data, and an error is only shown once a fetch has
// actually failed.
func DeriveStatus(e cache.Entry) Status {
	switch e.Status {
	case cache.StatusFresh:
		return StatusSuccess
	case cache.StatusErrored:
		return StatusError
	default:
		if e.HasValue {
			return StatusRefreshing
		}
		return StatusLoading
	}
}

func viewOf(e cache.Entry) View {
	v := View{
		Key:       e.Key,
		Data:      e.Value,
		HasData:   e.HasValue,
		Status:    DeriveStatus(e),
		UpdatedAt: e.UpdatedAt,
	}
	if e.Status == cache.StatusErrored && e.Err != nil {
		v.Err = domain.Classify(e.Err)
	}
	return v
}

// Executor implements get-or-fetch semantics over the resource cache. Every
// observer of a key shares one fetch; fetches run detached from observers so
// an observer going away never cancels them.
type Executor struct {
	cache   *cache.Cache
	metrics *observability.Metrics
	logger  *zap.Logger
	timeout time.Duration

	mu       sync.Mutex
	fetchers map[string]FetchFunc
}

// NewExecutor creates an Executor over c. timeout bounds a single fetch
// (zero means no extra bound beyond the transport's).
func NewExecutor(c *cache.Cache, metrics *observability.Metrics, logger *zap.Logger, timeout time.Duration) *Executor {
	return &Executor{
		cache:    c,
		metrics:  metrics,
		logger:   logger,
		timeout:  timeout,
		fetchers: make(map[string]FetchFunc),
	}
}

// Cache returns the underlying resource cache.
func (e *Executor) Cache() *cache.Cache {
	return e.cache
}

// Use observes key without blocking: an idle or stale entry triggers a
// background fetch, and the current view is returned right away.
func (e *Executor) Use(key cache.Key, fetch FetchFunc) View {
	e.observe(key, fetch, false)
	entry, _ := e.cache.Peek(key)
	return viewOf(entry)
}

// UseWithPlaceholder is Use, except that while key has no data yet the data
// of placeholder is shown with status refreshing. It keeps the previous page
// on screen while the next one loads.
func (e *Executor) UseWithPlaceholder(key cache.Key, fetch FetchFunc, placeholder cache.Key) View {
	v := e.Use(key, fetch)
	if v.HasData || v.Status != StatusLoading || placeholder.String() == key.String() {
		return v
	}
	prev, ok := e.cache.Peek(placeholder)
	if !ok || !prev.HasValue {
		return v
	}
	v.Data = prev.Value
	v.HasData = true
	v.Status = StatusRefreshing
	v.UpdatedAt = prev.UpdatedAt
	v.Placeholder = true
	return v
}

// Await observes key and blocks until no fetch is in flight for it. The
// returned error is only ever ctx's; fetch failures are in View.Err.
func (e *Executor) Await(ctx context.Context, key cache.Key, fetch FetchFunc) (View, error) {
	return e.await(ctx, key, fetch, false)
}

// Refetch forces a fetch of an already observed key, joining one that is
// already in flight, and waits for it.
func (e *Executor) Refetch(ctx context.Context, key cache.Key) (View, error) {
	fetch, ok := e.fetcher(key)
	if !ok {
		return View{}, &domain.ErrNotFound{Resource: "query", ID: key.String()}
	}
	return e.await(ctx, key, fetch, true)
}

// RefetchMatching refetches, concurrently, every observed key matched by pred.
func (e *Executor) RefetchMatching(ctx context.Context, pred cache.Predicate) error {
	e.mu.Lock()
	var keys []cache.Key
	for _, k := range e.cache.Keys() {
		if _, ok := e.fetchers[k.String()]; ok && pred(k) {
			keys = append(keys, k)
		}
	}
	e.mu.Unlock()

	g, gCtx := errgroup.WithContext(ctx)
	for _, k := range keys {
		g.Go(func() error {
			_, err := e.Refetch(gCtx, k)
			return err
		})
	}
	return g.Wait()
}

func (e *Executor) await(ctx context.Context, key cache.Key, fetch FetchFunc, force bool) (View, error) {
	for {
		flight, pending := e.observe(key, fetch, force)
		if !pending {
			entry, _ := e.cache.Peek(key)
			return viewOf(entry), nil
		}
		if err := flight.Wait(ctx); err != nil {
			entry, _ := e.cache.Peek(key)
			return viewOf(entry), err
		}
		// A superseded flight lands without committing; go around and
		// follow whichever fetch is current now.
		force = false
	}
}

// observe registers fetch for key and starts a fetch when the entry needs
// one (or when force is set). It returns the flight to wait on, if any.
func (e *Executor) observe(key cache.Key, fetch FetchFunc, force bool) (cache.Flight, bool) {
	if fetch != nil {
		e.mu.Lock()
		e.fetchers[key.String()] = fetch
		e.mu.Unlock()
	} else if fetch, _ = e.fetcher(key); fetch == nil {
		// Nothing to fetch with yet; only wait on a flight someone else started.
		return e.cache.JoinFlight(key)
	}

	entry := e.cache.GetOrCreate(key)
	switch entry.Status {
	case cache.StatusFresh:
		if !force {
			e.metrics.IncrCacheHit(key.Kind)
			return cache.Flight{}, false
		}
	case cache.StatusErrored:
		// Errors are never retried automatically.
		if !force {
			return cache.Flight{}, false
		}
	}

	flight, joined := e.cache.BeginFetch(key)
	if joined {
		return flight, true
	}

	e.metrics.IncrCacheMiss(key.Kind)
	e.metrics.IncrFetch(key.Kind)
	go e.run(flight, fetch)
	return flight, true
}

func (e *Executor) run(flight cache.Flight, fetch FetchFunc) {
	ctx := context.Background()
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	ctx, span := queryTracer.Start(ctx, "Executor.fetch")
	defer span.End()
	span.SetAttributes(
		attribute.String("cache.key", flight.Key.String()),
		attribute.String("cache.request_id", flight.RequestID),
	)

	value, err := fetch(ctx)

	var committed bool
	if err != nil {
		de := domain.Classify(err)
		committed = e.cache.Fail(flight.Key, flight.RequestID, de)
		if committed {
			e.logger.Warn("query: fetch failed",
				zap.String("key", flight.Key.String()),
				zap.Int("status", de.StatusCode()),
				zap.Error(de),
			)
		}
	} else {
		committed = e.cache.Resolve(flight.Key, flight.RequestID, value)
	}

	if !committed {
		e.metrics.IncrSuppressedCommit(flight.Key.Kind)
		e.logger.Debug("query: discarded result of superseded fetch",
			zap.String("key", flight.Key.String()),
			zap.String("request_id", flight.RequestID),
		)
	}
	span.SetAttributes(attribute.Bool("cache.committed", committed))
}

func (e *Executor) fetcher(key cache.Key) (FetchFunc, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	fetch, ok := e.fetchers[key.String()]
	return fetch, ok
}
