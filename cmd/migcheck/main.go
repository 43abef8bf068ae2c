package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/denismitr/migcheck"
	"github.com/denismitr/migcheck/internal/cli"
	"github.com/jessevdk/go-flags"
	"github.com/logrusorgru/aurora/v3"
	"github.com/pkg/errors"
)

const defaultTimeout = 300 * time.Second

// AppCtx holds the options shared by all commands
type AppCtx struct {
	Config  string        `short:"c" long:"config" description:"Path to the configuration file" default:"migcheck.yaml"`
	Verbose bool          `short:"v" long:"verbose" description:"Print debug messages and executed SQL"`
	Timeout time.Duration `long:"timeout" description:"Timeout of the whole command" default:"300s"`
}

type actionFlags struct {
	Steps     int      `short:"s" long:"steps" description:"Number of migrations to process, all when zero"`
	Revisions []string `short:"r" long:"revision" description:"Only process the given revisions, can be repeated"`
}

func (f actionFlags) config() cli.ActionConfig {
	return cli.ActionConfig{Steps: f.Steps, Revisions: f.Revisions}
}

var appCtx = &AppCtx{}
var parser = flags.NewParser(appCtx, flags.Default&^flags.PrintErrors)

func init() {
	parser.ShortDescription = "migcheck"
	parser.LongDescription = "Upgrades and downgrades database migrations one by one to verify they are reversible"

	parser.AddCommand("init", "Create a configuration file", "Write a configuration file stub to the --config path.", &initCmd{})
	parser.AddCommand("create", "Create a migration", "Create empty migrate and rollback files under a new revision.", &createCmd{})
	parser.AddCommand("walk", "Verify pending migrations", "Upgrade, downgrade and upgrade again every pending migration.", &walkCmd{})
	parser.AddCommand("upgrade", "Apply pending migrations", "Apply pending migrations without any checks.", &upgradeCmd{})
	parser.AddCommand("downgrade", "Roll back applied migrations", "Roll back applied migrations newest first.", &downgradeCmd{})
	parser.AddCommand("status", "Show migrations", "List the migrations of the folder and whether they are applied.", &statusCmd{})
}

// withApp creates the application out of the configuration file and closes it afterwards
func withApp(fn func(ctx context.Context, app *cli.App) error) (err error) {
	app, closer, err := cli.NewFromYaml(appCtx.Config, appCtx.Verbose)
	if err != nil {
		return err
	}

	defer func() {
		if closeErr := closer(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), appCtx.Timeout)
	defer cancel()

	return fn(ctx, app)
}

type initCmd struct{}

func (c *initCmd) Execute(_ []string) error {
	if cli.FileExists(appCtx.Config) {
		return errors.Errorf("configuration file [%s] already exists", appCtx.Config)
	}

	if err := cli.InitCfg(appCtx.Config); err != nil {
		return err
	}

	success("created " + appCtx.Config)
	return nil
}

type createCmd struct {
	Args struct {
		Name string `positional-arg-name:"name" description:"Name of the migration"`
	} `positional-args:"yes" required:"yes"`
}

func (c *createCmd) Execute(_ []string) error {
	return withApp(func(_ context.Context, app *cli.App) error {
		m, err := app.CreateMigration(c.Args.Name)
		if err != nil {
			return err
		}

		success(fmt.Sprintf("created migration [%s]", m.Key()))
		return nil
	})
}

type walkCmd struct {
	actionFlags
}

func (c *walkCmd) Execute(_ []string) error {
	return withApp(func(ctx context.Context, app *cli.App) error {
		report, err := app.Walk(ctx, c.config())
		if report != nil {
			for _, res := range report.Results {
				line := fmt.Sprintf("%-8s %s (%s)", res.Status, res.Key, res.Duration.Round(time.Millisecond))
				if res.Status == migcheck.StatusFailed {
					fmt.Println(aurora.Red(line), res.Err)
					continue
				}
				fmt.Println(line)
			}
		}

		return err
	})
}

type upgradeCmd struct {
	actionFlags
}

func (c *upgradeCmd) Execute(_ []string) error {
	return withApp(func(ctx context.Context, app *cli.App) error {
		migrated, err := app.Upgrade(ctx, c.config())
		if errors.Is(err, migcheck.ErrNothingToMigrate) {
			success("nothing to migrate")
			return nil
		}

		if err != nil {
			return err
		}

		success(fmt.Sprintf("applied %d migrations", len(migrated)))
		return nil
	})
}

type downgradeCmd struct {
	actionFlags
}

func (c *downgradeCmd) Execute(_ []string) error {
	return withApp(func(ctx context.Context, app *cli.App) error {
		rolledBack, err := app.Downgrade(ctx, c.config())
		if errors.Is(err, migcheck.ErrNothingToMigrate) {
			success("nothing to roll back")
			return nil
		}

		if err != nil {
			return err
		}

		success(fmt.Sprintf("rolled back %d migrations", len(rolledBack)))
		return nil
	})
}

type statusCmd struct{}

func (c *statusCmd) Execute(_ []string) error {
	return withApp(func(ctx context.Context, app *cli.App) error {
		status, err := app.Status(ctx)
		if err != nil {
			return err
		}

		for _, s := range status {
			applied := "pending"
			if s.Applied {
				applied = s.AppliedAt.Format(time.RFC3339)
			}

			check := ""
			if s.HasCheck {
				check = " [check]"
			}

			fmt.Printf("%-25s %s%s\n", applied, s.Key, check)
		}

		return nil
	})
}

func success(msg string) {
	fmt.Println(aurora.Green("migcheck: "), msg)
}

func main() {
	if _, err := parser.Parse(); err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			fmt.Println(e.Message)
			os.Exit(0)
		}

		fmt.Println(aurora.Red("migcheck: "), err.Error())
		os.Exit(1)
	}
}
