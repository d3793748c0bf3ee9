package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/singleflight"

	"github.com/sensei-edu/sensei-api/internal/domain"
	"github.com/sensei-edu/sensei-api/internal/observability"
	"github.com/sensei-edu/sensei-api/internal/repository"
)

// NotAvailable is shown in place of a missing reference.
const NotAvailable = "N/A"

// LooksLikeID reports whether raw has the shape of a stored document id
// (24 hex characters). Anything else is treated as a name.
func LooksLikeID(raw string) bool {
	return primitive.IsValidObjectID(strings.TrimSpace(raw))
}

// DisplayResolver maps taxonomy references to names. Lookups go through the
// shared cache first and concurrent misses for one key share a single query.
type DisplayResolver struct {
	taxonomy repository.TaxonomyRepository
	cache    DisplayNameCacheStore
	ttl      time.Duration
	logger   *slog.Logger
	group    singleflight.Group
}

func NewDisplayResolver(taxonomy repository.TaxonomyRepository, cache DisplayNameCacheStore, ttl time.Duration, logger *slog.Logger) *DisplayResolver {
	if cache == nil {
		cache = NewNoopDisplayNameCacheStore()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DisplayResolver{taxonomy: taxonomy, cache: cache, ttl: ttl, logger: logger}
}

// ResolveFilter turns an id-or-name filter value into a reference filter.
// A name that matches nothing yields an applied filter with no ids.
func (r *DisplayResolver) ResolveFilter(ctx context.Context, kind domain.TaxonomyKind, raw string) (repository.RefFilter, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return repository.RefFilter{}, nil
	}
	if LooksLikeID(raw) {
		return repository.RefFilter{Applied: true, IDs: []string{raw}}, nil
	}
	ids, err := r.taxonomy.FindIDsByName(ctx, kind, raw)
	if err != nil {
		return repository.RefFilter{}, err
	}
	return repository.RefFilter{Applied: true, IDs: ids}, nil
}

// MatchingRefIDs collects ids of every taxonomy entry whose name contains text.
func (r *DisplayResolver) MatchingRefIDs(ctx context.Context, text string) ([]string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	var out []string
	for _, kind := range []domain.TaxonomyKind{domain.TaxonomyCourseClass, domain.TaxonomySection, domain.TaxonomySubject} {
		ids, err := r.taxonomy.FindIDsByName(ctx, kind, text)
		if err != nil {
			return nil, err
		}
		out = append(out, ids...)
	}
	return out, nil
}

// Name never fails: anything it cannot resolve comes back as raw, and an
// empty reference reads as NotAvailable.
func (r *DisplayResolver) Name(ctx context.Context, kind domain.TaxonomyKind, raw string) string {
	ref := strings.TrimSpace(raw)
	if ref == "" {
		return NotAvailable
	}
	if !LooksLikeID(ref) {
		observability.RecordDisplayLookup(ctx, string(kind), "raw")
		return raw
	}
	if name, ok, err := r.cache.Get(ctx, string(kind), ref); err != nil {
		r.logger.DebugContext(ctx, "display name cache read failed", "kind", kind, "error", err)
	} else if ok {
		observability.RecordDisplayLookup(ctx, string(kind), "cache")
		return name
	}

	v, err, _ := r.group.Do(string(kind)+":"+ref, func() (any, error) {
		return r.taxonomy.NameByID(ctx, kind, ref)
	})
	if err != nil {
		if !errors.Is(err, repository.ErrTaxonomyNotFound) {
			r.logger.WarnContext(ctx, "display name lookup failed", "kind", kind, "ref", ref, "error", err)
		}
		observability.RecordDisplayLookup(ctx, string(kind), "fallback")
		return raw
	}
	name, _ := v.(string)
	if name == "" {
		observability.RecordDisplayLookup(ctx, string(kind), "fallback")
		return raw
	}
	if err := r.cache.Set(ctx, string(kind), ref, name, r.ttl); err != nil {
		r.logger.DebugContext(ctx, "display name cache write failed", "kind", kind, "error", err)
	}
	observability.RecordDisplayLookup(ctx, string(kind), "store")
	return name
}

// Scope returns a resolver memoized for one request.
func (r *DisplayResolver) Scope() *DisplayScope {
	return &DisplayScope{resolver: r, memo: make(map[string]string)}
}

// DisplayScope memoizes names by kind and raw reference. It is safe for the
// goroutines building one response.
type DisplayScope struct {
	resolver *DisplayResolver
	mu       sync.Mutex
	memo     map[string]string
}

func (s *DisplayScope) Name(ctx context.Context, kind domain.TaxonomyKind, raw string) string {
	key := string(kind) + "\x00" + raw
	s.mu.Lock()
	name, ok := s.memo[key]
	s.mu.Unlock()
	if ok {
		observability.RecordDisplayLookup(ctx, string(kind), "memo")
		return name
	}
	name = s.resolver.Name(ctx, kind, raw)
	s.mu.Lock()
	s.memo[key] = name
	s.mu.Unlock()
	return name
}

// Size is the number of memoized references.
func (s *DisplayScope) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.memo)
}
