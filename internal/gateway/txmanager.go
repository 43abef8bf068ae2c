package gateway

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

var ErrTxDeadlock = errors.New("transaction deadlock occurred")

// TxConfig - configures tx
type TxConfig struct {
	Iso      sql.IsolationLevel
	ReadOnly bool
}

type TxConfigFunc func(*TxConfig)

// ISO - isolation level type
type ISO int

const (
	Serializable ISO = iota
	RepeatableRead
	ReadCommitted
	DriverDefault
)

// Isolation tx config function
func Isolation(iso ISO) TxConfigFunc {
	return func(txCfg *TxConfig) {
		switch iso {
		case Serializable:
			txCfg.Iso = sql.LevelSerializable
		case RepeatableRead:
			txCfg.Iso = sql.LevelRepeatableRead
		case ReadCommitted:
			txCfg.Iso = sql.LevelReadCommitted
		case DriverDefault:
			txCfg.Iso = sql.LevelDefault
		}
	}
}

// Tx is what a callback may use, both *sqlx.Tx and *sqlx.DB satisfy it
type Tx interface {
	sqlx.ExtContext
}

type TxCallback func(context.Context, Tx) error

type TxManager interface {
	ReadOnly(context.Context, TxCallback, ...TxConfigFunc) error
	ReadWrite(context.Context, TxCallback, ...TxConfigFunc) error
}

type SqlxTxManager struct {
	db *sqlx.DB
}

var _ TxManager = (*SqlxTxManager)(nil)

func NewTxManager(db *sqlx.DB) *SqlxTxManager {
	return &SqlxTxManager{db: db}
}

func (txm *SqlxTxManager) ReadOnly(ctx context.Context, cb TxCallback, cfn ...TxConfigFunc) error {
	txCfg := TxConfig{
		Iso:      sql.LevelRepeatableRead,
		ReadOnly: true,
	}

	for _, fn := range cfn {
		fn(&txCfg)
	}

	return txm.isolate(ctx, cb, txCfg)
}

func (txm *SqlxTxManager) ReadWrite(ctx context.Context, cb TxCallback, cfn ...TxConfigFunc) error {
	txCfg := TxConfig{
		Iso:      sql.LevelSerializable,
		ReadOnly: false,
	}

	for _, fn := range cfn {
		fn(&txCfg)
	}

	return txm.isolate(ctx, cb, txCfg)
}

func (txm *SqlxTxManager) isolate(ctx context.Context, cb TxCallback, txCfg TxConfig) error {
	txx, err := txm.db.BeginTxx(ctx, &sql.TxOptions{ReadOnly: txCfg.ReadOnly, Isolation: txCfg.Iso})
	if err != nil {
		return errors.Wrapf(
			err,
			"could not start transaction. read-only: %v, isolation: %d",
			txCfg.ReadOnly, txCfg.Iso,
		)
	}

	if err := cb(ctx, txx); err != nil {
		if isDeadlock(err) {
			err = errors.Wrapf(
				ErrTxDeadlock,
				"read-only: %v, isolation: %d, on callback: %s",
				txCfg.ReadOnly, txCfg.Iso, err.Error(),
			)
		}

		if rbErr := txx.Rollback(); rbErr != nil {
			return errors.Wrap(err, " : ROLLBACK : "+rbErr.Error())
		}

		return err
	}

	if err := txx.Commit(); err != nil {
		if isDeadlock(err) {
			return errors.Wrapf(
				ErrTxDeadlock,
				"read-only: %v, isolation: %d, on commit: %s",
				txCfg.ReadOnly, txCfg.Iso, err.Error(),
			)
		}

		return errors.Wrapf(
			err,
			"could not commit transaction. read-only: %v, isolation: %d",
			txCfg.ReadOnly, txCfg.Iso,
		)
	}

	return nil
}

func isDeadlock(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "deadlock")
}
