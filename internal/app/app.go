// Package app wires the stores, the quota gate and the per-vertical upsert
// handlers from a config.Config.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/roach88/worldforge/internal/authz"
	"github.com/roach88/worldforge/internal/config"
	"github.com/roach88/worldforge/internal/content/item"
	"github.com/roach88/worldforge/internal/content/talent"
	"github.com/roach88/worldforge/internal/es"
	"github.com/roach88/worldforge/internal/logging"
	"github.com/roach88/worldforge/internal/quota"
	"github.com/roach88/worldforge/internal/readmodel"
	"github.com/roach88/worldforge/internal/store"
	"github.com/roach88/worldforge/internal/upsert"
	"github.com/roach88/worldforge/internal/validate"
)

type (
	ItemHandler   = upsert.Handler[*item.Item, item.Payload, readmodel.ItemView]
	TalentHandler = upsert.Handler[*talent.Talent, talent.Payload, readmodel.TalentView]
)

// App is a fully wired worldforge instance.
type App struct {
	Config    *config.Config
	Log       *logging.Logger
	Store     *store.Store
	Views     *gorm.DB
	Gate      *quota.Gate
	Validator *validate.Validator

	ItemRepo   *es.Repository[*item.Item]
	TalentRepo *es.Repository[*talent.Talent]
	Items      *ItemHandler
	Talents    *TalentHandler

	redis *redis.Client
}

type options struct {
	log        *logging.Logger
	clock      es.Clock
	ids        es.IDGenerator
	eventIDs   es.IDGenerator
	authorizer upsert.Authorizer
}

// Option customizes New.
type Option func(*options)

// WithLogger overrides the logger built from cfg.Log.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithClock sets the clock used to stamp events.
func WithClock(c es.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithIDs sets the generators for new entity ids and event ids.
func WithIDs(entities, events es.IDGenerator) Option {
	return func(o *options) {
		o.ids = entities
		o.eventIDs = events
	}
}

// WithAuthorizer replaces the default owner-only authorizer.
func WithAuthorizer(a upsert.Authorizer) Option {
	return func(o *options) { o.authorizer = a }
}

// New opens every backend named by cfg. On error everything opened so far
// is closed.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (_ *App, err error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.Log = o.log
	if a.Log == nil {
		if a.Log, err = logging.New(cfg.Log.Mode); err != nil {
			return nil, err
		}
	}

	if a.Store, err = store.OpenDriver(cfg.Database.Driver, cfg.Database.DSN); err != nil {
		return nil, err
	}
	if a.Views, err = readmodel.Open(cfg.ReadModel.Driver, cfg.ReadModel.DSN); err != nil {
		return nil, err
	}
	if a.Validator, err = validate.New(); err != nil {
		return nil, err
	}

	gateOpts := []quota.Option{
		quota.WithDefaultAllocation(cfg.Quota.DefaultAllocatedBytes),
		quota.WithLogger(a.Log.With("component", "quota")),
	}
	if cfg.Quota.Locker == config.LockerRedis {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err = a.redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Redis.Addr, err)
		}
		gateOpts = append(gateOpts, quota.WithLocker(
			quota.NewRedisLocker(a.redis, quota.WithLockTTL(cfg.Quota.LockTTL))))
	}
	a.Gate = quota.NewGate(a.Store, gateOpts...)

	var repoOpts []es.RepositoryOption
	if o.eventIDs != nil {
		repoOpts = append(repoOpts, es.WithEventIDs(o.eventIDs))
	}
	a.ItemRepo = es.NewRepository(a.Store, item.NewRegistry(), func() *item.Item { return &item.Item{} }, repoOpts...)
	a.TalentRepo = es.NewRepository(a.Store, talent.NewRegistry(), func() *talent.Talent { return &talent.Talent{} }, repoOpts...)

	authorizer := o.authorizer
	if authorizer == nil {
		authorizer = authz.NewOwnerAuthorizer(a.Store)
	}
	deps := upsert.Deps{
		Validator:  a.Validator,
		Authorizer: authorizer,
		Clock:      o.clock,
		IDs:        o.ids,
		Logger:     a.Log.With("component", "upsert"),
	}

	a.Items = upsert.NewHandler[*item.Item, item.Payload, readmodel.ItemView](item.Vertical{}, a.ItemRepo, a.Gate, deps).
		WithPrechecker(item.SlugPrecheck{DB: a.Views}).
		WithProjector(readmodel.NewItemWriter(a.Views))
	a.Talents = upsert.NewHandler[*talent.Talent, talent.Payload, readmodel.TalentView](talent.Vertical{}, a.TalentRepo, a.Gate, deps).
		WithProjector(readmodel.NewTalentWriter(a.Views))

	return a, nil
}

// Close releases every backend. It is safe on a partially built App.
func (a *App) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.Views != nil {
		errs = append(errs, readmodel.Close(a.Views))
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	if a.Log != nil {
		a.Log.Sync()
	}
	return errors.Join(errs...)
}
