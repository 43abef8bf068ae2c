package migcheck

import (
	"github.com/denismitr/migcheck/internal/logger"
	"github.com/denismitr/migcheck/internal/source"
	"github.com/denismitr/migcheck/lock"
	"github.com/denismitr/migcheck/migration"
	"github.com/pkg/errors"
)

type OptionFunc func(*Harness) error

func UseColorLogger(p logger.Printer, printSql, printDebug bool) OptionFunc {
	return func(h *Harness) error {
		h.lg = logger.NewColorLogger(p, printSql, printDebug)
		return nil
	}
}

func UseLogger(p logger.Printer, printSql, printDebug bool) OptionFunc {
	return func(h *Harness) error {
		h.lg = logger.NewBWLogger(p, printSql, printDebug)
		return nil
	}
}

func UseLocalFolderSource(folder string) OptionFunc {
	return func(h *Harness) error {
		s := source.NewLocalFSSource(folder, h.lg)
		if !s.IsValid() {
			return errors.Wrapf(source.ErrNoMigrations, "folder [%s] is not valid", folder)
		}

		h.selector = s
		return nil
	}
}

// UseSelector reads migrations from s, commands that create
// migration files need s to implement source.Source as well
func UseSelector(s source.Selector) OptionFunc {
	return func(h *Harness) error {
		if s == nil {
			return errors.New("selector is nil")
		}

		h.selector = s
		return nil
	}
}

func UseInMemorySource(factories ...migration.Factory) OptionFunc {
	return func(h *Harness) error {
		s, err := source.NewInMemorySource(factories...)
		if err != nil {
			return err
		}

		h.selector = s
		return nil
	}
}

func WithRegistry(r *Registry) OptionFunc {
	return func(h *Harness) error {
		if r == nil {
			return errors.Wrap(ErrInvalidCheck, "registry is nil")
		}

		h.registry = r
		return nil
	}
}

// WithLocker replaces the lock picked for the database
func WithLocker(l lock.Locker) OptionFunc {
	return func(h *Harness) error {
		h.locker = l
		return nil
	}
}

func WithLockKey(key string) OptionFunc {
	return func(h *Harness) error {
		if key != "" {
			h.lockKey = key
		}
		return nil
	}
}

func NoLock() OptionFunc {
	return func(h *Harness) error {
		h.noLock = true
		return nil
	}
}

// WithCloser registers fn to be called when the harness is closed
func WithCloser(fn CloserFunc) OptionFunc {
	return func(h *Harness) error {
		h.closerFns = append(h.closerFns, fn)
		return nil
	}
}
