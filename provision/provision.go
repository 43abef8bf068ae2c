// Package provision creates share service resources for black box tests
// and destroys them in reverse order of creation.
package provision

import (
	"context"
	"sync"
	"time"

	"github.com/denismitr/migcheck/internal/logger"
	"github.com/denismitr/migcheck/internal/retry"
	"github.com/denismitr/migcheck/lock"
	"github.com/pkg/errors"
)

const (
	// LockKey guards the find or create path of shared infrastructure
	LockKey = "service-provisioning"

	AutogeneratedShareNetworkName = "autogenerated_by_migcheck"

	StatusAvailable = "available"
	StatusError     = "error"

	DefaultStatusPollStep     = 2 * time.Second
	DefaultStatusPollAttempts = 150
)

var (
	ErrNotFound         = errors.New("resource not found")
	ErrUnauthorized     = errors.New("not authorized to access the resource")
	ErrUnknownKind      = errors.New("unknown resource kind")
	ErrUnexpectedStatus = errors.New("resource reached an unexpected status")
)

type Kind string

const (
	KindShare           Kind = "share"
	KindSnapshot        Kind = "snapshot"
	KindShareNetwork    Kind = "share_network"
	KindSecurityService Kind = "security_service"
	KindVolumeType      Kind = "volume_type"
)

// Scope tells which cleanup stack a resource goes to, class resources
// live for a whole suite and method resources for a single test
type Scope int

const (
	ScopeClass Scope = iota + 1
	ScopeMethod
)

type Resource struct {
	Kind Kind
	ID   string

	deleted bool
}

type Config struct {
	SuppressCleanupErrors bool
	MultitenancyEnabled   bool
	StatusPollStep        time.Duration
	StatusPollAttempts    int
}

func DefaultConfig() Config {
	return Config{
		StatusPollStep:     DefaultStatusPollStep,
		StatusPollAttempts: DefaultStatusPollAttempts,
	}
}

type Option func(*Provisioner)

func WithLocker(l lock.Locker) Option {
	return func(p *Provisioner) {
		if l != nil {
			p.locker = l
		}
	}
}

func WithLogger(lg logger.Logger) Option {
	return func(p *Provisioner) {
		if lg != nil {
			p.lg = lg
		}
	}
}

// Provisioner keeps track of everything it created. It is safe for concurrent use,
// although cleanup of one scope is expected to run after its tests finished.
type Provisioner struct {
	client Client
	cfg    Config
	locker lock.Locker
	lg     logger.Logger

	mu     sync.Mutex
	stacks map[Scope][]*Resource
}

func New(client Client, cfg Config, opts ...Option) *Provisioner {
	if cfg.StatusPollStep <= 0 {
		cfg.StatusPollStep = DefaultStatusPollStep
	}

	if cfg.StatusPollAttempts <= 0 {
		cfg.StatusPollAttempts = DefaultStatusPollAttempts
	}

	p := &Provisioner{
		client: client,
		cfg:    cfg,
		locker: lock.NewMutex(),
		lg:     &logger.NullLogger{},
		stacks: make(map[Scope][]*Resource),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Resources returns the not yet deleted resources of the scope, newest last
func (p *Provisioner) Resources(scope Scope) []Resource {
	p.mu.Lock()
	defer p.mu.Unlock()

	var result []Resource
	for _, r := range p.stacks[scope] {
		if !r.deleted {
			result = append(result, *r)
		}
	}

	return result
}

func (p *Provisioner) push(scope Scope, kind Kind, id string) Resource {
	p.mu.Lock()
	defer p.mu.Unlock()

	r := &Resource{Kind: kind, ID: id}
	p.stacks[scope] = append(p.stacks[scope], r)

	return *r
}

// CreateShare creates a share and waits until it becomes available.
// The share is scheduled for cleanup even when it never does.
func (p *Provisioner) CreateShare(ctx context.Context, scope Scope, opts ShareOpts) (Resource, error) {
	id, err := p.client.CreateShare(ctx, opts)
	if err != nil {
		return Resource{}, errors.Wrap(err, "could not create share")
	}

	r := p.push(scope, KindShare, id)
	p.lg.Debugf("created share [%s]", id)

	if err := p.WaitForStatus(ctx, KindShare, id, StatusAvailable); err != nil {
		return r, err
	}

	return r, nil
}

func (p *Provisioner) CreateSnapshot(ctx context.Context, scope Scope, opts SnapshotOpts) (Resource, error) {
	id, err := p.client.CreateSnapshot(ctx, opts)
	if err != nil {
		return Resource{}, errors.Wrapf(err, "could not create snapshot of share [%s]", opts.ShareID)
	}

	r := p.push(scope, KindSnapshot, id)
	p.lg.Debugf("created snapshot [%s] of share [%s]", id, opts.ShareID)

	if err := p.WaitForStatus(ctx, KindSnapshot, id, StatusAvailable); err != nil {
		return r, err
	}

	return r, nil
}

func (p *Provisioner) CreateShareNetwork(ctx context.Context, scope Scope, opts ShareNetworkOpts) (Resource, error) {
	id, err := p.client.CreateShareNetwork(ctx, opts)
	if err != nil {
		return Resource{}, errors.Wrap(err, "could not create share network")
	}

	p.lg.Debugf("created share network [%s]", id)

	return p.push(scope, KindShareNetwork, id), nil
}

func (p *Provisioner) CreateSecurityService(ctx context.Context, scope Scope, opts SecurityServiceOpts) (Resource, error) {
	id, err := p.client.CreateSecurityService(ctx, opts)
	if err != nil {
		return Resource{}, errors.Wrapf(err, "could not create security service of type [%s]", opts.Type)
	}

	p.lg.Debugf("created security service [%s]", id)

	return p.push(scope, KindSecurityService, id), nil
}

func (p *Provisioner) CreateVolumeType(ctx context.Context, scope Scope, opts VolumeTypeOpts) (Resource, error) {
	id, err := p.client.CreateVolumeType(ctx, opts)
	if err != nil {
		return Resource{}, errors.Wrapf(err, "could not create volume type [%s]", opts.Name)
	}

	p.lg.Debugf("created volume type [%s]", id)

	return p.push(scope, KindVolumeType, id), nil
}

// ClearResources deletes the resources of scope newest first and waits
// for every deletion to finish before moving to the next resource, a share
// can not go while its snapshots are still there.
// Resources that are already gone or not ours to see are skipped silently,
// other failures are returned unless cleanup errors are suppressed,
// then they are only logged and the cleanup goes on.
func (p *Provisioner) ClearResources(ctx context.Context, scope Scope) error {
	p.mu.Lock()
	stack := p.stacks[scope]
	p.mu.Unlock()

	for i := len(stack) - 1; i >= 0; i-- {
		r := stack[i]
		if r.deleted {
			continue
		}

		err := p.delete(ctx, r)
		if err == nil {
			err = p.WaitForDeletion(ctx, r.Kind, r.ID)
		}
		r.deleted = true

		if err == nil {
			p.lg.Debugf("deleted %s [%s]", r.Kind, r.ID)
			continue
		}

		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnauthorized) {
			p.lg.Debugf("%s [%s] is already gone: %s", r.Kind, r.ID, err.Error())
			continue
		}

		err = errors.Wrapf(err, "could not delete %s [%s]", r.Kind, r.ID)
		if !p.cfg.SuppressCleanupErrors {
			return err
		}

		p.lg.Warnf("cleanup error suppressed: %s", err.Error())
	}

	return nil
}

func (p *Provisioner) delete(ctx context.Context, r *Resource) error {
	switch r.Kind {
	case KindShare:
		return p.client.DeleteShare(ctx, r.ID)
	case KindSnapshot:
		return p.client.DeleteSnapshot(ctx, r.ID)
	case KindShareNetwork:
		return p.client.DeleteShareNetwork(ctx, r.ID)
	case KindSecurityService:
		return p.client.DeleteSecurityService(ctx, r.ID)
	case KindVolumeType:
		return p.client.DeleteVolumeType(ctx, r.ID)
	}

	return errors.Wrapf(ErrUnknownKind, "[%s]", r.Kind)
}

// ProvideShareNetwork returns the share network tests should use for
// the neutron network and subnet, an empty id when multitenancy is disabled.
// A network created here is shared by every test so it is never cleaned up.
func (p *Provisioner) ProvideShareNetwork(ctx context.Context, netID, subnetID string) (string, error) {
	if !p.cfg.MultitenancyEnabled {
		return "", nil
	}

	var id string
	err := lock.Do(ctx, p.locker, LockKey, func(ctx context.Context) error {
		networks, err := p.client.ListShareNetworks(ctx)
		if err != nil {
			return errors.Wrap(err, "could not list share networks")
		}

		for _, sn := range networks {
			if sn.NeutronNetID == netID && sn.NeutronSubnetID == subnetID {
				id = sn.ID
				p.lg.Debugf("found share network [%s] for net [%s] subnet [%s]", id, netID, subnetID)
				return nil
			}
		}

		id, err = p.client.CreateShareNetwork(ctx, ShareNetworkOpts{
			Name:            AutogeneratedShareNetworkName,
			Description:     "share network shared by all tests",
			NeutronNetID:    netID,
			NeutronSubnetID: subnetID,
		})
		if err != nil {
			return errors.Wrap(err, "could not create share network")
		}

		p.lg.Successf("created share network [%s] for net [%s] subnet [%s]", id, netID, subnetID)

		return nil
	})

	if err != nil {
		return "", err
	}

	return id, nil
}

// WaitForStatus polls the resource until it reaches want.
// An error status stops the polling right away.
func (p *Provisioner) WaitForStatus(ctx context.Context, kind Kind, id, want string) error {
	var last string

	err := retry.Constant(ctx, p.cfg.StatusPollStep, p.cfg.StatusPollAttempts, func(attempt int) error {
		status, err := p.client.Status(ctx, kind, id)
		if err != nil {
			return err
		}

		last = status

		switch {
		case status == want:
			return nil
		case status == StatusError && want != StatusError:
			return errors.Wrapf(ErrUnexpectedStatus, "%s [%s] is in status [%s]", kind, id, status)
		}

		return retry.Error(errors.Errorf("%s [%s] is in status [%s]", kind, id, status), attempt)
	})

	if err != nil {
		return errors.Wrapf(err, "%s [%s] did not become %s, last status [%s]", kind, id, want, last)
	}

	return nil
}

// WaitForDeletion polls the resource until the client no longer finds it.
// Kinds without a status are deleted synchronously and return right away.
func (p *Provisioner) WaitForDeletion(ctx context.Context, kind Kind, id string) error {
	if kind != KindShare && kind != KindSnapshot {
		return nil
	}

	var last string

	err := retry.Constant(ctx, p.cfg.StatusPollStep, p.cfg.StatusPollAttempts, func(attempt int) error {
		status, err := p.client.Status(ctx, kind, id)
		if errors.Is(err, ErrNotFound) {
			return nil
		}

		if err != nil {
			return err
		}

		last = status

		return retry.Error(errors.Errorf("%s [%s] is in status [%s]", kind, id, status), attempt)
	})

	if err != nil {
		return errors.Wrapf(err, "%s [%s] was not deleted, last status [%s]", kind, id, last)
	}

	return nil
}
