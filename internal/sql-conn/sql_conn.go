package sqlconn

import (
	"context"
	"database/sql"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// PoolSettings bounds the connection pool of a *sql.DB.
type PoolSettings struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	// PingRetries is how many extra pings are attempted before giving up.
	PingRetries uint64
}

// DefaultPool is used for the service database.
var DefaultPool = PoolSettings{
	MaxOpenConns:    25,
	MaxIdleConns:    10,
	ConnMaxLifetime: 30 * time.Minute,
	ConnMaxIdleTime: 5 * time.Minute,
	PingRetries:     5,
}

// ReadOnlyPool is used for the core switch database, which is only read during imports.
var ReadOnlyPool = PoolSettings{
	MaxOpenConns:    5,
	MaxIdleConns:    2,
	ConnMaxLifetime: 15 * time.Minute,
	ConnMaxIdleTime: 2 * time.Minute,
	PingRetries:     3,
}

// Open opens driver/dsn with the given pool settings and waits for the server
// to answer a ping, backing off between attempts.
func Open(ctx context.Context, driver, dsn string, pool PoolSettings) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxInterval = 2 * time.Second

	err = backoff.RetryNotify(func() error {
		return db.PingContext(ctx)
	}, backoff.WithContext(backoff.WithMaxRetries(policy, pool.PingRetries), ctx), func(err error, wait time.Duration) {
		logrus.WithFields(logrus.Fields{"driver": driver, "retry_in": wait}).Warnf("database not reachable: %v", err)
	})
	if err != nil {
		logrus.WithField("driver", driver).Errorf("database connection error ❌: %v", err)
		_ = db.Close()
		return nil, err
	}

	logrus.WithField("driver", driver).Info("database connection established ✅")
	return db, nil
}
