package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Priya8975/userdb-provisioner/internal/domain"
	"github.com/Priya8975/userdb-provisioner/internal/provisioner"
)

// Backend is the provisioning API as the workflow sees it.
type Backend interface {
	Exists(ctx context.Context, name string) (bool, error)
	CreateDatabase(ctx context.Context, name, region string) (domain.ResourceRecord, error)
}

// RegionSelector picks a region from an optional client IP hint.
type RegionSelector interface {
	SelectRegion(ctx context.Context, hint string) string
}

type Breaker interface {
	Allow(ctx context.Context, scope string) (string, bool)
	RecordSuccess(ctx context.Context, scope string)
	RecordFailure(ctx context.Context, scope string)
}

type Throttle interface {
	Allow(ctx context.Context, scope string) bool
}

// Claimer serializes work per identity. Claim blocks until the claim is
// taken or ctx ends.
type Claimer interface {
	Claim(ctx context.Context, identity string) (release func(), acquired bool)
}

// Options configures a Provisioner. Breaker, Throttle and Claims are
// optional; leave them nil to run the plain check-then-act workflow.
type Options struct {
	Scope         string
	ListTimeout   time.Duration
	CreateTimeout time.Duration

	Breaker  Breaker
	Throttle Throttle
	Claims   Claimer
}

// Provisioner ensures exactly one database exists per identity key.
//
// The existence check and the create call are not atomic: two deliveries
// for the same identity can both see "missing". The second create then
// fails with a duplicate error, which is reported as already_exists.
type Provisioner struct {
	backend Backend
	regions RegionSelector
	opts    Options
	logger  *slog.Logger
}

func NewProvisioner(backend Backend, regions RegionSelector, opts Options, logger *slog.Logger) *Provisioner {
	if opts.ListTimeout <= 0 {
		opts.ListTimeout = 5 * time.Second
	}
	if opts.CreateTimeout <= 0 {
		opts.CreateTimeout = 10 * time.Second
	}
	return &Provisioner{
		backend: backend,
		regions: regions,
		opts:    opts,
		logger:  logger,
	}
}

// Ensure runs the workflow for one decoded, verified event.
func (p *Provisioner) Ensure(ctx context.Context, event domain.InboundEvent) domain.Result {
	identity := event.IdentityKey()
	logger := p.logger.With("identity", identity, "event_type", event.Type)

	if event.Type != domain.EventTypeUserCreated {
		logger.Info("ignoring event type")
		return domain.Result{
			Outcome:  domain.OutcomeIgnored,
			Identity: identity,
			Message:  "event type not handled",
		}
	}

	if p.opts.Claims != nil {
		// A delivery that cannot get the claim in time runs unclaimed; a
		// racing create is still reported as already_exists.
		claimCtx, cancel := context.WithTimeout(ctx, p.opts.ListTimeout)
		release, acquired := p.opts.Claims.Claim(claimCtx, identity)
		cancel()
		if acquired {
			defer release()
		} else {
			logger.Warn("claim wait timed out, continuing unclaimed")
		}
	}

	if p.opts.Breaker != nil {
		if state, ok := p.opts.Breaker.Allow(ctx, p.opts.Scope); !ok {
			logger.Warn("provisioning backend circuit open", "state", state)
			return domain.Result{
				Outcome:  domain.OutcomeTransientFailure,
				Identity: identity,
				Message:  "provisioning backend unavailable",
			}
		}
	}

	exists, err := p.exists(ctx, identity)
	if err != nil {
		p.recordFailure(ctx, err)
		logger.Error("existence check failed", "error", err)
		return domain.Result{
			Outcome:  domain.OutcomeTransientFailure,
			Identity: identity,
			Message:  "existence check failed",
			Err:      err,
		}
	}
	if exists {
		p.recordSuccess(ctx)
		logger.Info("database already exists")
		return alreadyExists(identity, "")
	}

	region := p.regions.SelectRegion(ctx, event.ClientIP())

	if p.opts.Throttle != nil && !p.opts.Throttle.Allow(ctx, p.opts.Scope) {
		logger.Warn("create call throttled", "region", region)
		return domain.Result{
			Outcome:  domain.OutcomeThrottled,
			Identity: identity,
			Region:   region,
			Message:  "create rate limit reached",
		}
	}

	record, err := p.create(ctx, identity, region)
	switch {
	case err == nil:
		p.recordSuccess(ctx)
		logger.Info("database created", "region", record.Region)
		return domain.Result{
			Outcome:  domain.OutcomeCreated,
			Identity: identity,
			Region:   record.Region,
			Resource: &record,
			Message:  "database created",
		}

	case errors.Is(err, provisioner.ErrAlreadyExists):
		p.recordSuccess(ctx)
		logger.Info("create raced an existing database", "region", region)
		return alreadyExists(identity, region)

	case provisioner.IsTransient(err):
		p.recordFailure(ctx, err)
		logger.Error("create failed, retryable", "error", err, "region", region)
		return domain.Result{
			Outcome:  domain.OutcomeTransientFailure,
			Identity: identity,
			Region:   region,
			Message:  "create failed",
			Err:      err,
		}

	default:
		logger.Error("create rejected by backend", "error", err, "region", region)
		return domain.Result{
			Outcome:  domain.OutcomeFatalFailure,
			Identity: identity,
			Region:   region,
			Message:  "create rejected by provisioning backend",
			Err:      err,
		}
	}
}

func (p *Provisioner) exists(ctx context.Context, identity string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.ListTimeout)
	defer cancel()
	return p.backend.Exists(ctx, identity)
}

func (p *Provisioner) create(ctx context.Context, identity, region string) (domain.ResourceRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.CreateTimeout)
	defer cancel()
	return p.backend.CreateDatabase(ctx, identity, region)
}

func (p *Provisioner) recordSuccess(ctx context.Context) {
	if p.opts.Breaker != nil {
		p.opts.Breaker.RecordSuccess(ctx, p.opts.Scope)
	}
}

// recordFailure only counts failures that say something about backend health.
func (p *Provisioner) recordFailure(ctx context.Context, err error) {
	if p.opts.Breaker != nil && provisioner.IsTransient(err) {
		p.opts.Breaker.RecordFailure(ctx, p.opts.Scope)
	}
}

func alreadyExists(identity, region string) domain.Result {
	return domain.Result{
		Outcome:  domain.OutcomeAlreadyExists,
		Identity: identity,
		Region:   region,
		Resource: &domain.ResourceRecord{Name: identity, Region: region},
		Message:  "database already exists",
	}
}
