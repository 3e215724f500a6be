package directory

import (
	"context"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/saiset-co/sai-directory/cache"
	"github.com/saiset-co/sai-directory/search"
	"github.com/saiset-co/sai-directory/types"
	"github.com/saiset-co/sai-directory/utils"
)

const DefaultAPIKeyHeader = "x-api-key"

func PageKey(page int) string {
	return fmt.Sprintf("users_page_%d", page)
}

func UserKey(id int) string {
	return fmt.Sprintf("user_%d", id)
}

type Option func(*Service)

// WithTTL overrides the cache lifetime of fetched records. Zero keeps the
// cache default.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.ttl = ttl
	}
}

// Service reads the remote user directory through the cache. Only successful
// responses are cached.
type Service struct {
	logger    types.Logger
	transport types.Transport
	cache     types.CacheManager
	pages     *cache.TypedCache[types.UsersPage]
	users     *cache.TypedCache[types.User]
	headers   map[string]string
	ttl       time.Duration
	group     singleflight.Group
}

func NewService(logger types.Logger, transport types.Transport, cacheManager types.CacheManager, config *types.DirectoryConfig, opts ...Option) (*Service, error) {
	if transport == nil || cacheManager == nil {
		return nil, types.Errorf(types.ErrInvalidParameter, "directory needs a transport and a cache")
	}

	s := &Service{
		logger:    logger,
		transport: transport,
		cache:     cacheManager,
		pages:     cache.NewTyped[types.UsersPage](cacheManager),
		users:     cache.NewTyped[types.User](cacheManager),
		headers:   make(map[string]string),
	}

	if config != nil && config.APIKey != "" {
		header := config.APIKeyHeader
		if header == "" {
			header = DefaultAPIKeyHeader
		}
		s.headers[header] = config.APIKey
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

func (s *Service) FetchUsers(ctx context.Context, page int) (*types.UsersPage, error) {
	if page < 1 {
		return nil, types.Errorf(types.ErrInvalidParameter, "page must be positive, got %d", page)
	}

	key := PageKey(page)
	if cached, ok := s.pages.Get(key); ok {
		s.logger.Debug("Users page served from cache", zap.Int("page", page))
		return clonePage(cached), nil
	}

	value, err, shared := s.group.Do(key, func() (interface{}, error) {
		if cached, ok := s.pages.Get(key); ok {
			return cached, nil
		}

		result, err := fetch[types.UsersPage](ctx, s, fmt.Sprintf("/users?page=%d", page))
		if err != nil {
			return nil, err
		}

		s.pages.Set(key, result, s.ttl)
		return result, nil
	})
	if err != nil {
		return nil, err
	}

	if shared {
		s.logger.Debug("Users page fetch shared", zap.Int("page", page))
	}

	result := value.(types.UsersPage)
	return clonePage(result), nil
}

func (s *Service) FetchUserByID(ctx context.Context, id int) (*types.User, error) {
	if id < 0 {
		return nil, types.Errorf(types.ErrInvalidParameter, "user id must not be negative, got %d", id)
	}

	key := UserKey(id)
	if cached, ok := s.users.Get(key); ok {
		s.logger.Debug("User served from cache", zap.Int("id", id))
		return &cached, nil
	}

	value, err, _ := s.group.Do(key, func() (interface{}, error) {
		if cached, ok := s.users.Get(key); ok {
			return cached, nil
		}

		result, err := fetch[types.UserResponse](ctx, s, fmt.Sprintf("/users/%d", id))
		if err != nil {
			return nil, err
		}

		if result.Data.ID == 0 && result.Data.Email == "" {
			return nil, types.Errorf(types.ErrResourceNotFound, "user %d", id)
		}

		s.users.Set(key, result.Data, s.ttl)
		return result.Data, nil
	})
	if err != nil {
		return nil, err
	}

	user := value.(types.User)
	return &user, nil
}

// Lookup adapts FetchUserByID for the search controller.
func (s *Service) Lookup() search.LookupFunc {
	return s.FetchUserByID
}

// Ping issues an uncached page request to check the remote API.
func (s *Service) Ping(ctx context.Context) error {
	_, err := fetch[types.UsersPage](ctx, s, "/users?page=1")
	return err
}

func (s *Service) InvalidateUser(id int) {
	s.cache.Delete(UserKey(id))
}

func (s *Service) InvalidatePage(page int) {
	s.cache.Delete(PageKey(page))
}

func (s *Service) InvalidateAll() {
	s.cache.Clear()
}

func fetch[T any](ctx context.Context, s *Service, path string) (T, error) {
	var result T

	resp, err := s.transport.PerformRequest(ctx, fasthttp.MethodGet, path, s.headers)
	if err != nil {
		return result, types.WrapError(err, fmt.Sprintf("GET %s", path))
	}

	switch {
	case resp.StatusCode == fasthttp.StatusNotFound:
		return result, types.Errorf(types.ErrResourceNotFound, "GET %s", path)
	case !resp.IsSuccess():
		return result, types.Errorf(types.ErrClientResponseInvalid, "GET %s: HTTP %d", path, resp.StatusCode)
	}

	if err := utils.Unmarshal(resp.Body, &result); err != nil {
		return result, types.Errorf(types.ErrClientResponseInvalid, "GET %s: %v", path, err)
	}

	return result, nil
}

func clonePage(page types.UsersPage) *types.UsersPage {
	page.Data = append([]types.User(nil), page.Data...)
	return &page
}

var _ types.Directory = (*Service)(nil)
