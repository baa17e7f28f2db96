// Package store is the server's credential store: accounts, password
// credentials and the signing key pair, persisted in one SQLite file.
//
// Every operation runs on a single worker goroutine, one at a time, in the
// order callers hand them over. A caller whose context ends stops waiting,
// but the operation it submitted still runs to completion.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/tors/internal/common"
	"github.com/dmitrijs2005/tors/internal/cryptox"
	"github.com/dmitrijs2005/tors/internal/dbx"
	"github.com/dmitrijs2005/tors/internal/filex"
	"github.com/dmitrijs2005/tors/internal/logging"
	"github.com/dmitrijs2005/tors/internal/metrics"
	"github.com/dmitrijs2005/tors/internal/server/models"
	"github.com/dmitrijs2005/tors/internal/server/repositories/repomanager"
	"github.com/sethvargo/go-retry"

	_ "modernc.org/sqlite"
)

const (
	driverName       = "sqlite"
	busyTimeoutMs    = 5000
	maxBusyRetries   = 3
	defaultRetryBase = 50 * time.Millisecond
)

// ErrClosed is returned for operations submitted after Close.
var ErrClosed = fmt.Errorf("%w: store closed", common.ErrStorageUnavailable)

type job struct {
	ctx context.Context
	op  string
	fn  func(ctx context.Context) error
	res chan error
}

type Store struct {
	db        *sql.DB
	repos     repomanager.RepositoryManager
	logger    logging.Logger
	metrics   *metrics.Metrics
	retryBase time.Duration

	jobs      chan job
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

type Option func(*Store)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithRetryBase sets the first backoff step used when the file is locked.
func WithRetryBase(d time.Duration) Option {
	return func(s *Store) { s.retryBase = d }
}

func WithRepositoryManager(rm repomanager.RepositoryManager) Option {
	return func(s *Store) { s.repos = rm }
}

// Open opens (creating if needed) the database at path and starts the worker.
// An unreachable database is reported as common.ErrStorageUnavailable.
func Open(ctx context.Context, path string, logger logging.Logger, opts ...Option) (*Store, error) {
	if err := filex.EnsureParentDir(path); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrStorageUnavailable, err)
	}

	db, err := sql.Open(driverName, dsn(path))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrStorageUnavailable, err)
	}

	// one connection: the worker is the only user, and an in-memory
	// database lives exactly as long as its connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", common.ErrStorageUnavailable, err)
	}

	s := &Store{
		db:        db,
		repos:     repomanager.NewSQLiteRepositoryManager(),
		logger:    logger.With("module", "store"),
		retryBase: defaultRetryBase,
		jobs:      make(chan job),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.run()

	s.logger.Info(ctx, "credential store opened", "path", path)
	return s, nil
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}
	return fmt.Sprintf("%s%s_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)", path, sep, busyTimeoutMs)
}

func (s *Store) run() {
	defer close(s.done)
	for {
		select {
		case j := <-s.jobs:
			s.exec(j)
		case <-s.quit:
			return
		}
	}
}

func (s *Store) exec(j job) {
	start := time.Now()
	backoff := retry.WithMaxRetries(maxBusyRetries, retry.NewExponential(s.retryBase))

	err := retry.Do(j.ctx, backoff, func(ctx context.Context) error {
		err := j.fn(ctx)
		if dbx.IsBusyError(err) {
			s.logger.Warn(ctx, "database busy, retrying", "op", j.op)
			return retry.RetryableError(err)
		}
		return err
	})

	s.metrics.ObserveStoreOperation(j.op, time.Since(start))
	j.res <- err
}

// submit hands fn to the worker and waits for it or for ctx.
func (s *Store) submit(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	j := job{
		ctx: context.WithoutCancel(ctx),
		op:  op,
		fn:  fn,
		res: make(chan error, 1),
	}

	select {
	case s.jobs <- j:
	case <-s.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-j.res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EnsureSchema applies pending migrations. It is safe on every start.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.submit(ctx, "ensure_schema", func(ctx context.Context) error {
		if err := s.repos.RunMigrations(ctx, s.db); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		return nil
	})
}

func (s *Store) UsernameExists(ctx context.Context, userName string) (bool, error) {
	var exists bool
	err := s.submit(ctx, "username_exists", func(ctx context.Context) error {
		var err error
		exists, err = s.repos.Accounts(s.db).Exists(ctx, userName)
		return err
	})
	if err != nil {
		return false, err
	}
	return exists, nil
}

// InsertAccountAndCredential stores both records in one transaction. A taken
// username or id is reported as common.ErrConflict and nothing is written.
func (s *Store) InsertAccountAndCredential(ctx context.Context, account *models.Account, credential *models.Credential) error {
	return s.submit(ctx, "insert_account", func(ctx context.Context) error {
		return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			if err := s.repos.Accounts(tx).Create(ctx, account); err != nil {
				return err
			}
			return s.repos.Credentials(tx).Create(ctx, credential)
		})
	})
}

// FindAccountCredential returns common.ErrorNotFound when userName is not
// registered.
func (s *Store) FindAccountCredential(ctx context.Context, userName string) (*models.Account, *models.Credential, error) {
	var (
		account    *models.Account
		credential *models.Credential
	)
	err := s.submit(ctx, "find_account", func(ctx context.Context) error {
		a, err := s.repos.Accounts(s.db).GetByUserName(ctx, userName)
		if err != nil {
			return err
		}
		c, err := s.repos.Credentials(s.db).GetByAccountID(ctx, a.ID)
		if err != nil {
			return err
		}
		c.HashVersion = cryptox.HashVersion(c.PasswordHash)
		account, credential = a, c
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return account, credential, nil
}

func (s *Store) LoadSigningKeyPair(ctx context.Context) (*models.SigningKeyPair, error) {
	var kp *models.SigningKeyPair
	err := s.submit(ctx, "load_signing_key", func(ctx context.Context) error {
		var err error
		kp, err = s.repos.SigningKeys(s.db).Get(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return kp, nil
}

// StoreSigningKeyPair returns common.ErrConflict if a pair is already stored.
func (s *Store) StoreSigningKeyPair(ctx context.Context, keyPair *models.SigningKeyPair) error {
	return s.submit(ctx, "store_signing_key", func(ctx context.Context) error {
		return s.repos.SigningKeys(s.db).Create(ctx, keyPair)
	})
}

// Close waits for the operation in progress, stops the worker and closes the
// database. Later calls return the first result.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		close(s.quit)
		<-s.done
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}
