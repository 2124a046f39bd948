package bookingapi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"

	"github.com/wellness/booking/internal/domain/booking"
)

// CatalogSource is the uncached catalog, normally *Client.
type CatalogSource interface {
	ListServices(ctx context.Context) ([]booking.Service, error)
	ListSpecialists(ctx context.Context, serviceID string) ([]booking.Specialist, error)
}

// ErrUnknownService is wrapped when a service ID is not in the catalog.
var ErrUnknownService = errors.New("unknown service")

const servicesKey = "services"

// CachedCatalog answers catalog questions from a size and age bounded
// cache in front of the booking authority. Services and specialists change
// rarely, so a short TTL is enough to keep slot resolution cheap.
type CachedCatalog struct {
	src         CatalogSource
	services    *expirable.LRU[string, []booking.Service]
	specialists *expirable.LRU[string, []booking.Specialist]
	logger      zerolog.Logger
	onLookup    func(kind string, hit bool)
}

// NewCachedCatalog wraps src. size bounds the number of cached specialist
// lists; ttl bounds the age of every entry.
func NewCachedCatalog(src CatalogSource, size int, ttl time.Duration, logger zerolog.Logger) *CachedCatalog {
	if size <= 0 {
		size = 256
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedCatalog{
		src:         src,
		services:    expirable.NewLRU[string, []booking.Service](1, nil, ttl),
		specialists: expirable.NewLRU[string, []booking.Specialist](size, nil, ttl),
		logger:      logger,
	}
}

// OnLookup installs a hook called on every cache lookup.
func (c *CachedCatalog) OnLookup(fn func(kind string, hit bool)) { c.onLookup = fn }

func (c *CachedCatalog) observe(kind string, hit bool) {
	if c.onLookup != nil {
		c.onLookup(kind, hit)
	}
}

// Services returns the full service catalog.
func (c *CachedCatalog) Services(ctx context.Context) ([]booking.Service, error) {
	if v, ok := c.services.Get(servicesKey); ok {
		c.observe("services", true)
		return v, nil
	}
	c.observe("services", false)

	v, err := c.src.ListServices(ctx)
	if err != nil {
		return nil, err
	}
	if v == nil {
		v = []booking.Service{}
	}
	c.services.Add(servicesKey, v)
	c.logger.Debug().Int("count", len(v)).Msg("service catalog cached")
	return v, nil
}

// Service returns one service by ID.
func (c *CachedCatalog) Service(ctx context.Context, id string) (booking.Service, error) {
	services, err := c.Services(ctx)
	if err != nil {
		return booking.Service{}, err
	}
	for _, s := range services {
		if s.ID == id {
			return s, nil
		}
	}
	return booking.Service{}, fmt.Errorf("service %s: %w", id, ErrUnknownService)
}

// SpecialistsForService returns the specialists who deliver serviceID.
// An empty serviceID lists everyone.
func (c *CachedCatalog) SpecialistsForService(ctx context.Context, serviceID string) ([]booking.Specialist, error) {
	if v, ok := c.specialists.Get(serviceID); ok {
		c.observe("specialists", true)
		return v, nil
	}
	c.observe("specialists", false)

	all, err := c.src.ListSpecialists(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	out := make([]booking.Specialist, 0, len(all))
	for _, s := range all {
		if serviceID == "" || s.Offers(serviceID) {
			out = append(out, s)
		}
	}
	c.specialists.Add(serviceID, out)
	return out, nil
}

// Purge drops every cached entry.
func (c *CachedCatalog) Purge() {
	c.services.Purge()
	c.specialists.Purge()
}
