package cli

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/denismitr/migcheck"
	"github.com/denismitr/migcheck/internal/source"
	"github.com/denismitr/migcheck/migration"
	"github.com/denismitr/migcheck/provision"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const revisionLength = 12

var (
	ErrMigrationAlreadyExists = errors.New("migration already exists")
	ErrFolderInvalid          = errors.New("migrations folder is invalid")
	ErrSourceTypeIsNotValid   = errors.New("source type is not valid")
	ErrChecksFailed           = errors.New("migration checks failed")
)

type (
	ActionConfig struct {
		Steps     int
		Revisions []string
	}

	App struct {
		source       source.Source
		harness      *migcheck.Harness
		provisioning provision.Config
	}
)

func NewFromYaml(path string, verbose bool) (*App, migcheck.CloserFunc, error) {
	cfg, err := NewConfigFromYaml(path)
	if err != nil {
		return nil, nil, err
	}

	cfg.Verbose = verbose

	return New(cfg)
}

func New(cfg Config) (*App, migcheck.CloserFunc, error) {
	h, closer, err := createHarness(cfg)
	if err != nil {
		return nil, nil, err
	}

	return newApp(cfg, h, closer)
}

// newApp takes ownership of the harness, it is closed when the app can not be built
func newApp(cfg Config, h *migcheck.Harness, closer migcheck.CloserFunc) (*App, migcheck.CloserFunc, error) {
	s := h.Source()
	if s == nil {
		if closeErr := closer(); closeErr != nil {
			return nil, nil, errors.Wrap(ErrSourceTypeIsNotValid, closeErr.Error())
		}
		return nil, nil, ErrSourceTypeIsNotValid
	}

	return &App{
		source:       s,
		harness:      h,
		provisioning: cfg.Provisioning,
	}, closer, nil
}

// NewProvisioner creates a resource provisioner for client with the
// provisioning settings of the config file
func (app *App) NewProvisioner(client provision.Client, opts ...provision.Option) *provision.Provisioner {
	return provision.New(client, app.provisioning, opts...)
}

// CreateMigration writes empty migrate and rollback files under a fresh revision
func (app *App) CreateMigration(name string) (*migration.Migration, error) {
	if !app.source.IsValid() {
		return nil, ErrFolderInvalid
	}

	revision := newRevision()
	if app.source.AlreadyExists(revision) {
		return nil, errors.Wrapf(ErrMigrationAlreadyExists, "revision [%s] name [%s]", revision, name)
	}

	return app.source.Create(revision, name)
}

// Walk upgrades and downgrades every pending migration, no checks are
// registered from the command line so it verifies reversibility only
func (app *App) Walk(ctx context.Context, cfg ActionConfig) (*migcheck.Report, error) {
	cfs, err := cfg.configurators()
	if err != nil {
		return nil, err
	}

	report, err := app.harness.Walk(ctx, nil, cfs...)
	if err != nil {
		return report, err
	}

	if !report.OK() {
		return report, errors.Wrapf(ErrChecksFailed, "%d of %d", len(report.Failed()), len(report.Results))
	}

	return report, nil
}

func (app *App) Upgrade(ctx context.Context, cfg ActionConfig) ([]string, error) {
	cfs, err := cfg.configurators()
	if err != nil {
		return nil, err
	}

	return app.harness.Upgrade(ctx, cfs...)
}

func (app *App) Downgrade(ctx context.Context, cfg ActionConfig) ([]string, error) {
	cfs, err := cfg.configurators()
	if err != nil {
		return nil, err
	}

	return app.harness.Downgrade(ctx, cfs...)
}

func (app *App) Status(ctx context.Context) ([]migcheck.MigrationStatus, error) {
	return app.harness.Status(ctx)
}

func (cfg ActionConfig) configurators() ([]migcheck.ActionConfigurator, error) {
	return migcheck.CreateConfigurators(cfg.Steps, cfg.Revisions)
}

func newRevision() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:revisionLength]
}

func InitCfg(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "could not create config file")
	}

	defer func() {
		if err := f.Close(); err != nil {
			panic(err)
		}
	}()

	r := strings.NewReader(configFileStub)

	if _, err := io.Copy(f, r); err != nil {
		return err
	}

	return nil
}

func FileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
