package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-social-auth/core"
)

const linksByAccountCacheKeyPrefix = "go-social-auth::links_by_account::v1"

// CachedLinkStore serves ListByAccount from a cache and delegates everything
// else to the base store.
type CachedLinkStore struct {
	base  *LinkStore
	cache repositorycache.CacheService
}

func NewCachedLinkStore(base *LinkStore, cacheService repositorycache.CacheService) (*CachedLinkStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base identity link store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: link cache service is required")
	}
	return &CachedLinkStore{base: base, cache: cacheService}, nil
}

// LinksByAccountCacheKey returns go-social-auth::links_by_account::v1::<account_id>
// with the account id URL-path escaped.
func LinksByAccountCacheKey(accountID core.AccountID) (string, error) {
	trimmed := strings.TrimSpace(accountID)
	if trimmed == "" {
		return "", fmt.Errorf("sqlstore: account id is required")
	}
	return linksByAccountCacheKeyPrefix + "::" + url.PathEscape(trimmed), nil
}

func (s *CachedLinkStore) FindByExternalID(ctx context.Context, providerSlug string, externalID string) (core.IdentityLink, bool, error) {
	return s.base.FindByExternalID(ctx, providerSlug, externalID)
}

func (s *CachedLinkStore) FindByAccountProvider(ctx context.Context, accountID core.AccountID, providerSlug string) (core.IdentityLink, bool, error) {
	return s.base.FindByAccountProvider(ctx, accountID, providerSlug)
}

func (s *CachedLinkStore) ListByAccount(ctx context.Context, accountID core.AccountID) ([]core.IdentityLink, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return nil, fmt.Errorf("sqlstore: cached identity link store is not configured")
	}
	cacheKey, err := LinksByAccountCacheKey(accountID)
	if err != nil {
		return nil, err
	}
	links, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) ([]core.IdentityLink, error) {
		fetched, fetchErr := s.base.ListByAccount(ctx, accountID)
		if fetchErr != nil {
			return nil, fetchErr
		}
		return cloneLinks(fetched), nil
	})
	if err != nil {
		return nil, err
	}
	return cloneLinks(links), nil
}

func (s *CachedLinkStore) Insert(ctx context.Context, link core.IdentityLink) (core.IdentityLink, error) {
	return s.base.Insert(ctx, link)
}

func (s *CachedLinkStore) Delete(ctx context.Context, accountID core.AccountID, providerSlug string) (bool, error) {
	return s.base.Delete(ctx, accountID, providerSlug)
}

func (s *CachedLinkStore) Invalidate(ctx context.Context, accountID core.AccountID) error {
	if s == nil || s.cache == nil {
		return nil
	}
	cacheKey, err := LinksByAccountCacheKey(accountID)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

func cloneLinks(links []core.IdentityLink) []core.IdentityLink {
	out := make([]core.IdentityLink, len(links))
	for i, link := range links {
		link.CreatedAt = link.CreatedAt.In(time.UTC)
		out[i] = link
	}
	return out
}
