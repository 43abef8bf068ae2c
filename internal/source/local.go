package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/denismitr/migcheck/internal/logger"
	"github.com/denismitr/migcheck/migration"
	"github.com/pkg/errors"
)

const DefaultMigrationsFolder = "./migrations"

const (
	defaultSqlExtension = "sql"

	migrateFileSuffix                = "migrate"
	rollbackFileSuffix               = "rollback"
	defaultMigrateFileFullExtension  = ".migrate.sql"
	defaultRollbackFileFullExtension = ".rollback.sql"
)

// <order>_<revision>[_<name>]
var keyRegexp = regexp.MustCompile(`^(?P<order>\d{1,9})_(?P<revision>[0-9A-Za-z]{1,64})(?:_(?P<name>\w+))?$`)

type LocalFileSource struct {
	folder string
	lg     logger.Logger
}

func NewLocalFSSource(folder string, lg logger.Logger) *LocalFileSource {
	if lg == nil {
		lg = &logger.NullLogger{}
	}

	return &LocalFileSource{
		folder: folder,
		lg:     lg,
	}
}

func (lfs *LocalFileSource) IsValid() bool {
	info, err := os.Stat(lfs.folder)
	if os.IsNotExist(err) || err != nil {
		return false
	}

	return info.IsDir()
}

func (lfs *LocalFileSource) AlreadyExists(revision string) bool {
	keys, err := lfs.keys()
	if err != nil {
		return false
	}

	for key := range keys {
		if _, r, _, err := parseKey(key); err == nil && r == revision {
			return true
		}
	}

	return false
}

// Create writes empty migrate and rollback files placed after the last migration
func (lfs *LocalFileSource) Create(revision, name string) (*migration.Migration, error) {
	if err := migration.ValidateRevision(revision); err != nil {
		return nil, err
	}

	if lfs.AlreadyExists(revision) {
		return nil, errors.Wrapf(ErrAlreadyExists, "[%s]", revision)
	}

	keys, err := lfs.keys()
	if err != nil {
		return nil, err
	}

	order := 1
	for key := range keys {
		if o, _, _, err := parseKey(key); err == nil && o >= order {
			order = o + 1
		}
	}

	key := fmt.Sprintf("%04d_%s", order, migration.CreateKey(revision, name))

	for _, ext := range []string{defaultMigrateFileFullExtension, defaultRollbackFileFullExtension} {
		filename := filepath.Join(lfs.folder, key+ext)
		f, err := os.Create(filename)
		if err != nil {
			return nil, errors.Wrapf(err, "could not create file [%s]", filename)
		}

		if cErr := f.Close(); cErr != nil {
			return nil, errors.Wrapf(cErr, "could not close file %s", filename)
		}
	}

	return &migration.Migration{
		Revision: revision,
		Name:     name,
		Order:    order,
	}, nil
}

func (lfs *LocalFileSource) Select(ctx context.Context, f Filter) (migration.Migrations, error) {
	keys, err := lfs.keys()
	if err != nil {
		return nil, err
	}

	if len(keys) == 0 {
		return nil, errors.Wrapf(ErrNoMigrations, "in folder [%s]", lfs.folder)
	}

	type result struct {
		m   *migration.Migration
		err error
	}

	resultCh := make(chan result, len(keys))
	var wg sync.WaitGroup

	for k := range keys {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			m, err := lfs.readOne(key)
			if err != nil {
				err = errors.Wrapf(err, "with key %s", key)
				lfs.lg.Error(err)
			}
			resultCh <- result{m: m, err: err}
		}(k)
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	var migrations migration.Migrations

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case r, ok := <-resultCh:
			if !ok {
				sort.Sort(migrations)
				return filterMigrations(migrations, f), nil
			}

			if r.err != nil {
				return nil, r.err
			}

			migrations = append(migrations, r.m)
		}
	}
}

// keys maps every migration key in the folder onto the number of its files
func (lfs *LocalFileSource) keys() (map[string]int, error) {
	files, err := os.ReadDir(lfs.folder)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read keys from folder %s", lfs.folder)
	}

	keys := make(map[string]int)

	for i := range files {
		if files[i].IsDir() {
			continue
		}

		key, err := convertLocalFilePathToKey(files[i].Name())
		if err != nil {
			lfs.lg.Debugf("skipping file %s: %s", files[i].Name(), err.Error())
			continue
		}

		keys[key]++
		if keys[key] > 2 {
			return nil, errors.Wrapf(ErrTooManyFilesForKey, "%s", key)
		}
	}

	return keys, nil
}

func (lfs *LocalFileSource) readOne(key string) (*migration.Migration, error) {
	order, revision, name, err := parseKey(key)
	if err != nil {
		return nil, err
	}

	migrateContents, err := os.ReadFile(filepath.Join(lfs.folder, key+defaultMigrateFileFullExtension))
	if err != nil {
		return nil, errors.Wrapf(ErrMissingFile, "migrate file of [%s]: %s", key, err.Error())
	}

	rollbackContents, err := os.ReadFile(filepath.Join(lfs.folder, key+defaultRollbackFileFullExtension))
	if err != nil {
		return nil, errors.Wrapf(ErrMissingFile, "rollback file of [%s]: %s", key, err.Error())
	}

	factory := migration.NewFromFile(
		order,
		revision,
		humanize(name),
		strings.TrimSpace(string(migrateContents)),
		strings.TrimSpace(string(rollbackContents)),
	)

	return factory()
}

func parseKey(key string) (order int, revision, name string, err error) {
	matches := keyRegexp.FindStringSubmatch(key)
	if len(matches) != 4 {
		return 0, "", "", errors.Wrapf(ErrInvalidFilename, "[%s]", key)
	}

	order, err = strconv.Atoi(matches[1])
	if err != nil || order <= 0 {
		return 0, "", "", errors.Wrapf(ErrInvalidFilename, "order of [%s]", key)
	}

	return order, matches[2], matches[3], nil
}

func convertLocalFilePathToKey(path string) (string, error) {
	_, name := filepath.Split(path)
	base := filepath.Base(name)
	segments := strings.Split(base, ".")

	if len(segments) != 3 {
		return "", ErrNotAMigrationFile
	}

	if segments[2] != defaultSqlExtension || !(segments[1] == migrateFileSuffix || segments[1] == rollbackFileSuffix) {
		return "", ErrNotAMigrationFile
	}

	return segments[0], nil
}
