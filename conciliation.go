/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package conciliation

import (
	"context"
	"embed"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jerry-enebeli/conciliation/config"
	"github.com/jerry-enebeli/conciliation/database"
	"github.com/jerry-enebeli/conciliation/internal/cache"
	redis_db "github.com/jerry-enebeli/conciliation/internal/redis-db"
	"github.com/jerry-enebeli/conciliation/internal/switchledger"
	"github.com/jerry-enebeli/conciliation/internal/tokenization"
	"github.com/jerry-enebeli/conciliation/internal/upstream"
)

//go:embed sql/*.sql
var SQLFiles embed.FS

// Conciliation reconciles the switch ledger against institution ledgers and
// keeps the results.
type Conciliation struct {
	datasource database.IDataSource
	cipher     tokenization.Cipher
	fetcher    upstream.Fetcher
	ledger     switchledger.Reader
	redis      redis.UniversalClient
	cache      cache.Cache
	queue      *Queue
	matcher    *Matcher
	clock      Clock
	loc        *time.Location

	fetchTimeout   time.Duration
	lockTTL        time.Duration
	lockWait       time.Duration
	institutionTTL time.Duration
	saveRetryWait  time.Duration
	serviceList    []string
}

// defaultSaveRetryWait is the first pause before a background run retries its save.
const defaultSaveRetryWait = 500 * time.Millisecond

// NewConciliation wires the service from the loaded configuration.
//
// Parameters:
// - db database.IDataSource: The datasource for database operations.
//
// Returns:
// - *Conciliation: The service.
// - error: An error if any dependency could not be initialised.
func NewConciliation(db database.IDataSource) (*Conciliation, error) {
	cnf, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	redisClient, err := redis_db.NewRedisClient(cnf.Redis.Dns, cnf.Redis.SkipTLSVerify)
	if err != nil {
		return nil, err
	}

	cipher, err := newCipher(cnf.Encryption)
	if err != nil {
		return nil, err
	}

	policy, err := ParseDuplicateKeyPolicy(cnf.Conciliation.DuplicateKeyPolicy)
	if err != nil {
		return nil, err
	}

	queue, err := NewQueue(cnf)
	if err != nil {
		return nil, err
	}

	var ledger switchledger.Reader
	if cnf.SwitchLedger.Dns != "" {
		reader, err := switchledger.Open(context.Background(), cnf.SwitchLedger)
		if err != nil {
			return nil, err
		}
		ledger = reader
	}

	loc := cnf.Location()
	clock := systemClock{loc: loc}
	return &Conciliation{
		datasource:     db,
		cipher:         cipher,
		fetcher:        upstream.NewClient(cnf.InstitutionService, loc),
		ledger:         ledger,
		redis:          redisClient.Client(),
		cache:          cache.NewCache(redisClient.Client()),
		queue:          queue,
		matcher:        NewMatcher(policy, clock),
		clock:          clock,
		loc:            loc,
		fetchTimeout:   time.Duration(cnf.Conciliation.FetchTimeoutSeconds) * time.Second,
		lockTTL:        time.Duration(cnf.Conciliation.LockTimeoutSeconds) * time.Second,
		lockWait:       time.Duration(cnf.Conciliation.LockWaitSeconds) * time.Second,
		institutionTTL: time.Duration(cnf.Conciliation.InstitutionCacheTTL) * time.Second,
		saveRetryWait:  defaultSaveRetryWait,
		serviceList:    cnf.InstitutionService.ServiceList,
	}, nil
}

func newCipher(cnf config.EncryptionConfig) (*tokenization.TokenizationService, error) {
	if len(cnf.Keys) > 0 {
		return tokenization.NewKeyRing(cnf.ActiveKeyID, cnf.Keys)
	}
	return tokenization.NewTokenizationService(cnf.ActiveKeyID, cnf.Key), nil
}

// Queue exposes the task queue used for background runs.
func (c *Conciliation) Queue() *Queue {
	return c.queue
}
