package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/inaiurai/gateway/internal/models"
)

var (
	// ErrNotConfigured means neither an active row nor an environment key exists.
	ErrNotConfigured = errors.New("no AI provider configured")
	// ErrNotFound is returned for unknown configuration ids.
	ErrNotFound = errors.New("provider configuration not found")
	// ErrInvalidConfig is returned when a configuration fails validation.
	ErrInvalidConfig = errors.New("invalid provider configuration")
)

const defaultRateLimitPerMinute = 60

// Store persists provider configurations. Create, Update and Activate keep
// at most one row active.
type Store interface {
	GetActive(ctx context.Context) (*models.ProviderConfiguration, error)
	Get(ctx context.Context, id uuid.UUID) (*models.ProviderConfiguration, error)
	List(ctx context.Context) ([]*models.ProviderConfiguration, error)
	Create(ctx context.Context, c *models.ProviderConfiguration) error
	Update(ctx context.Context, id uuid.UUID, p UpdateParams) (*models.ProviderConfiguration, error)
	Activate(ctx context.Context, id uuid.UUID) (*models.ProviderConfiguration, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type CreateParams struct {
	Provider           string
	APIKey             string
	ModelName          string
	IsActive           bool
	IsFallback         bool
	RateLimitPerMinute int
}

// UpdateParams holds optional changes; nil fields are left as they are.
type UpdateParams struct {
	Provider           *string
	APIKey             *string
	ModelName          *string
	IsActive           *bool
	IsFallback         *bool
	RateLimitPerMinute *int
}

type Service interface {
	ResolveActive(ctx context.Context) (models.ProviderChoice, error)
	List(ctx context.Context) ([]*models.ProviderConfiguration, error)
	Create(ctx context.Context, p CreateParams) (*models.ProviderConfiguration, error)
	Update(ctx context.Context, id uuid.UUID, p UpdateParams) (*models.ProviderConfiguration, error)
	Activate(ctx context.Context, id uuid.UUID) (*models.ProviderConfiguration, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type service struct {
	store    Store
	defaults []models.ProviderChoice
	log      *slog.Logger
}

// NewService returns a registry service. defaults are environment-derived
// choices in priority order; the first one with a key is the fallback.
func NewService(store Store, defaults []models.ProviderChoice, log *slog.Logger) Service {
	if log == nil {
		log = slog.Default()
	}
	return &service{store: store, defaults: defaults, log: log}
}

var _ Service = (*service)(nil)

// ResolveActive returns the active configuration, or the first environment
// default with a key. It never returns a choice without a key.
func (s *service) ResolveActive(ctx context.Context) (models.ProviderChoice, error) {
	c, err := s.store.GetActive(ctx)
	switch {
	case err == nil && strings.TrimSpace(c.APIKey) != "":
		return models.ProviderChoice{
			Provider:  c.Provider,
			APIKey:    c.APIKey,
			ModelName: c.ModelName,
			Source:    "database",
		}, nil
	case err == nil:
		s.log.Warn("active provider configuration has no api key, using environment", "config_id", c.ID)
	case !errors.Is(err, ErrNotFound):
		return models.ProviderChoice{}, fmt.Errorf("load active provider: %w", err)
	}

	for _, d := range s.defaults {
		if strings.TrimSpace(d.APIKey) == "" || !models.ValidProvider(d.Provider) {
			continue
		}
		d.Source = "environment"
		return d, nil
	}
	return models.ProviderChoice{}, ErrNotConfigured
}

func (s *service) List(ctx context.Context) ([]*models.ProviderConfiguration, error) {
	return s.store.List(ctx)
}

func (s *service) Create(ctx context.Context, p CreateParams) (*models.ProviderConfiguration, error) {
	p.Provider = strings.ToLower(strings.TrimSpace(p.Provider))
	p.APIKey = strings.TrimSpace(p.APIKey)
	p.ModelName = strings.TrimSpace(p.ModelName)
	if !models.ValidProvider(p.Provider) {
		return nil, fmt.Errorf("%w: unsupported provider %q", ErrInvalidConfig, p.Provider)
	}
	if p.APIKey == "" || p.ModelName == "" {
		return nil, fmt.Errorf("%w: api key and model name are required", ErrInvalidConfig)
	}
	if p.RateLimitPerMinute <= 0 {
		p.RateLimitPerMinute = defaultRateLimitPerMinute
	}
	c := &models.ProviderConfiguration{
		ID:                 uuid.New(),
		Provider:           p.Provider,
		APIKey:             p.APIKey,
		ModelName:          p.ModelName,
		IsActive:           p.IsActive,
		IsFallback:         p.IsFallback,
		RateLimitPerMinute: p.RateLimitPerMinute,
	}
	if err := s.store.Create(ctx, c); err != nil {
		return nil, err
	}
	s.log.Info("provider configuration created", "config_id", c.ID, "provider", c.Provider, "active", c.IsActive)
	return c, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, p UpdateParams) (*models.ProviderConfiguration, error) {
	if p.Provider != nil {
		v := strings.ToLower(strings.TrimSpace(*p.Provider))
		if !models.ValidProvider(v) {
			return nil, fmt.Errorf("%w: unsupported provider %q", ErrInvalidConfig, v)
		}
		p.Provider = &v
	}
	if p.APIKey != nil && strings.TrimSpace(*p.APIKey) == "" {
		return nil, fmt.Errorf("%w: api key cannot be empty", ErrInvalidConfig)
	}
	if p.ModelName != nil && strings.TrimSpace(*p.ModelName) == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", ErrInvalidConfig)
	}
	if p.RateLimitPerMinute != nil && *p.RateLimitPerMinute <= 0 {
		return nil, fmt.Errorf("%w: rate limit must be positive", ErrInvalidConfig)
	}
	return s.store.Update(ctx, id, p)
}

func (s *service) Activate(ctx context.Context, id uuid.UUID) (*models.ProviderConfiguration, error) {
	c, err := s.store.Activate(ctx, id)
	if err != nil {
		return nil, err
	}
	s.log.Info("provider configuration activated", "config_id", c.ID, "provider", c.Provider)
	return c, nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.store.Delete(ctx, id)
}

// MaskKey hides all but the last four characters of an api key.
func MaskKey(key string) string {
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", 8) + key[len(key)-4:]
}
