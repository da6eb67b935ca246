package template

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"notification-pipeline/internal/domain/entity"
	"notification-pipeline/internal/repository"
	"notification-pipeline/internal/resilience/circuitbreaker"
)

// DefaultCacheTTL is how long a loaded template is served from cache.
const DefaultCacheTTL = time.Hour

// Cache is the JSON cache used for template rows.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

// StoreResolver reads templates from the shared database.
// It serves the newest active version and falls back to the default language.
type StoreResolver struct {
	Repo     repository.TemplateRepository
	Cache    Cache
	CacheTTL time.Duration
	KeyFunc  func(code, language string) string
	// Breaker guards Repo reads when set.
	Breaker *circuitbreaker.CircuitBreaker
}

// Resolve loads and renders the template.
func (r *StoreResolver) Resolve(ctx context.Context, code, language string, variables map[string]any) (*entity.RenderedContent, error) {
	if language == "" {
		language = entity.DefaultLanguage
	}

	tpl, err := r.load(ctx, code, language)
	if err != nil {
		return nil, err
	}
	if tpl == nil && language != entity.DefaultLanguage {
		// 指定言語が無ければ既定言語で再検索
		tpl, err = r.load(ctx, code, entity.DefaultLanguage)
		if err != nil {
			return nil, err
		}
	}
	if tpl == nil {
		return nil, fmt.Errorf("%w: %s/%s", entity.ErrTemplateNotFound, code, language)
	}
	return Substitute(tpl, variables), nil
}

func (r *StoreResolver) load(ctx context.Context, code, language string) (*entity.Template, error) {
	key := r.cacheKey(code, language)
	if r.Cache != nil {
		var cached entity.Template
		found, err := r.Cache.GetJSON(ctx, key, &cached)
		if err != nil {
			slog.Warn("template cache read failed", slog.String("key", key), slog.Any("error", err))
		} else if found {
			return &cached, nil
		}
	}

	tpl, err := r.latestActive(ctx, code, language)
	if err != nil {
		return nil, &entity.DependencyError{Dependency: "template_store", Err: err}
	}
	if tpl == nil {
		return nil, nil
	}

	if r.Cache != nil {
		ttl := r.CacheTTL
		if ttl <= 0 {
			ttl = DefaultCacheTTL
		}
		if err := r.Cache.SetJSON(ctx, key, tpl, ttl); err != nil {
			slog.Warn("template cache write failed", slog.String("key", key), slog.Any("error", err))
		}
	}
	return tpl, nil
}

func (r *StoreResolver) latestActive(ctx context.Context, code, language string) (*entity.Template, error) {
	if r.Breaker == nil {
		return r.Repo.LatestActive(ctx, code, language)
	}
	var tpl *entity.Template
	err := r.Breaker.Do(func() error {
		var err error
		tpl, err = r.Repo.LatestActive(ctx, code, language)
		return err
	})
	return tpl, err
}

// BreakerState exposes the breaker state for health reporting.
func (r *StoreResolver) BreakerState() string {
	if r.Breaker == nil {
		return circuitbreaker.StateClosed
	}
	return r.Breaker.State()
}

func (r *StoreResolver) cacheKey(code, language string) string {
	if r.KeyFunc != nil {
		return r.KeyFunc(code, language)
	}
	return "template:" + code + ":" + language
}
