package cli

import (
	"io/ioutil"
	"os"
	"strings"
	"time"

	"github.com/Masterminds/semver"
	"github.com/denismitr/migcheck/provision"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

const SupportedConfigVersions = "^1"

var (
	ErrConfigVersion      = errors.New("configuration file version is not supported")
	ErrDatabaseURLMissing = errors.New("database url was not defined")
	ErrFolderMissing      = errors.New("migrations folder was not defined")
)

type (
	Config struct {
		DatabaseURL      string
		MigrationsFolder string
		LockKey          string
		NoLock           bool
		Verbose          bool
		Provisioning     provision.Config
	}

	migrations struct {
		LocalFolder string `yaml:"local_folder"`
		DatabaseURL string `yaml:"database_url"`
		LockKey     string `yaml:"lock_key"`
		NoLock      bool   `yaml:"no_lock"`
	}

	provisioning struct {
		SuppressErrorsInCleanup bool          `yaml:"suppress_errors_in_cleanup"`
		MultitenancyEnabled     bool          `yaml:"multitenancy_enabled"`
		StatusPollStep          time.Duration `yaml:"status_poll_step"`
		StatusPollAttempts      int           `yaml:"status_poll_attempts"`
	}

	configFile struct {
		Version      string       `yaml:"version"`
		Migrations   migrations   `yaml:"migrations"`
		Provisioning provisioning `yaml:"provisioning"`
	}
)

func NewConfigFromYaml(path string) (Config, error) {
	var cfg Config

	b, err := ioutil.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "could not read migcheck configuration file")
	}

	var cfgFile configFile
	if err := yaml.Unmarshal(b, &cfgFile); err != nil {
		return cfg, errors.Wrap(err, "could not parse migcheck configuration file")
	}

	if err := checkVersion(cfgFile.Version); err != nil {
		return cfg, err
	}

	cfg.DatabaseURL = fromEnv(cfgFile.Migrations.DatabaseURL)
	cfg.MigrationsFolder = fromEnv(cfgFile.Migrations.LocalFolder)
	cfg.LockKey = fromEnv(cfgFile.Migrations.LockKey)
	cfg.NoLock = cfgFile.Migrations.NoLock

	if cfg.DatabaseURL == "" {
		return cfg, ErrDatabaseURLMissing
	}

	if cfg.MigrationsFolder == "" {
		return cfg, ErrFolderMissing
	}

	cfg.Provisioning = provision.DefaultConfig()
	cfg.Provisioning.SuppressCleanupErrors = cfgFile.Provisioning.SuppressErrorsInCleanup
	cfg.Provisioning.MultitenancyEnabled = cfgFile.Provisioning.MultitenancyEnabled

	if cfgFile.Provisioning.StatusPollStep > 0 {
		cfg.Provisioning.StatusPollStep = cfgFile.Provisioning.StatusPollStep
	}

	if cfgFile.Provisioning.StatusPollAttempts > 0 {
		cfg.Provisioning.StatusPollAttempts = cfgFile.Provisioning.StatusPollAttempts
	}

	return cfg, nil
}

func checkVersion(version string) error {
	c, err := semver.NewConstraint(SupportedConfigVersions)
	if err != nil {
		return err
	}

	v, err := semver.NewVersion(version)
	if err != nil {
		return errors.Wrapf(ErrConfigVersion, "[%s]: %s", version, err.Error())
	}

	if !c.Check(v) {
		return errors.Wrapf(ErrConfigVersion, "[%s] does not satisfy [%s]", version, SupportedConfigVersions)
	}

	return nil
}

// fromEnv resolves %%NAME%% values from the environment
func fromEnv(value string) string {
	if len(value) > 4 && strings.HasPrefix(value, "%%") && strings.HasSuffix(value, "%%") {
		return os.Getenv(strings.Trim(value, "%"))
	}

	return value
}

const configFileStub = `version: "1"
migrations:
  local_folder: "%%MIGCHECK_FOLDER%%"
  database_url: "%%MIGCHECK_DATABASE_URL%%"
  lock_key: migcheck_migrations
  no_lock: false
provisioning:
  suppress_errors_in_cleanup: false
  multitenancy_enabled: false
  status_poll_step: 2s
  status_poll_attempts: 150
`
