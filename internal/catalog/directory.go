package catalog

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"supplyrecon/internal"
	"supplyrecon/internal/errx"
	"supplyrecon/internal/logx"
)

// Provider is the external source of known suppliers and products.
type Provider interface {
	ListSuppliers(ctx context.Context) ([]internal.Supplier, error)
	ListProducts(ctx context.Context) ([]internal.Product, error)
}

const (
	keySuppliers = "suppliers"
	keyProducts  = "products"
)

type entry struct {
	value     any
	fetchedAt time.Time
}

// Directory caches both catalogs for a fixed TTL. An expired or absent entry
// is refetched by the first caller that notices; concurrent callers for the
// same key share that one fetch.
type Directory struct {
	provider Provider
	ttl      time.Duration
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]entry
	index   *Index
	indexAt [2]time.Time

	group singleflight.Group
}

func NewDirectory(provider Provider, ttl time.Duration) *Directory {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Directory{
		provider: provider,
		ttl:      ttl,
		now:      time.Now,
		entries:  map[string]entry{},
	}
}

func (d *Directory) Suppliers(ctx context.Context) ([]internal.Supplier, error) {
	v, _, err := d.get(ctx, keySuppliers, func(ctx context.Context) (any, error) {
		return d.provider.ListSuppliers(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]internal.Supplier), nil
}

func (d *Directory) Products(ctx context.Context) ([]internal.Product, error) {
	v, _, err := d.get(ctx, keyProducts, func(ctx context.Context) (any, error) {
		return d.provider.ListProducts(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]internal.Product), nil
}

// Index returns a lookup view over the current snapshot of both catalogs.
// The view is rebuilt only when either catalog was refetched.
func (d *Directory) Index(ctx context.Context) (*Index, error) {
	suppliers, err := d.Suppliers(ctx)
	if err != nil {
		return nil, err
	}
	products, err := d.Products(ctx)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	stamp := [2]time.Time{d.entries[keySuppliers].fetchedAt, d.entries[keyProducts].fetchedAt}
	if d.index == nil || d.indexAt != stamp {
		d.index = BuildIndex(suppliers, products)
		d.indexAt = stamp
	}
	return d.index, nil
}

// Invalidate drops both cached catalogs; the next read refetches.
func (d *Directory) Invalidate() {
	d.mu.Lock()
	d.entries = map[string]entry{}
	d.index = nil
	d.mu.Unlock()
}

func (d *Directory) get(ctx context.Context, key string, fetch func(context.Context) (any, error)) (any, bool, error) {
	d.mu.Lock()
	e, ok := d.entries[key]
	fresh := ok && d.now().Sub(e.fetchedAt) <= d.ttl
	d.mu.Unlock()
	if fresh {
		return e.value, true, nil
	}

	// The shared fetch outlives any one caller; each caller still stops
	// waiting when its own context ends.
	fetchCtx := context.WithoutCancel(ctx)
	ch := d.group.DoChan(key, func() (any, error) {
		started := d.now()
		value, err := fetch(fetchCtx)
		if err != nil {
			return nil, err
		}
		d.mu.Lock()
		d.entries[key] = entry{value: value, fetchedAt: started}
		d.mu.Unlock()
		return value, nil
	})
	var (
		v      any
		err    error
		shared bool
	)
	select {
	case <-ctx.Done():
		return nil, false, errx.Wrap(ctx.Err(), errx.KindCatalog, "wait for "+key)
	case res := <-ch:
		v, err, shared = res.Val, res.Err, res.Shared
	}
	if err != nil {
		logx.Warn().Err(err).Str("catalog", key).Msg("directory refresh failed")
		if errx.IsKind(err, errx.KindCatalog) {
			return nil, false, err
		}
		return nil, false, errx.Wrap(err, errx.KindCatalog, "refresh "+key)
	}
	if !shared {
		logx.Debug().Str("catalog", key).Msg("directory refreshed")
	}
	return v, false, nil
}
