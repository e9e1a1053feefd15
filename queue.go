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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/jerry-enebeli/conciliation/config"
	"github.com/jerry-enebeli/conciliation/internal/apierror"
	redlock "github.com/jerry-enebeli/conciliation/internal/lock"
	redis_db "github.com/jerry-enebeli/conciliation/internal/redis-db"
	"github.com/jerry-enebeli/conciliation/model"
)

// TypeRunConciliation is the asynq task type of a background run-and-save.
const TypeRunConciliation = "conciliation:run"

// Queue represents a queue for handling background conciliation runs.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
	queueName string
	maxRetry  int
}

// RunPayload is the body of a TypeRunConciliation task.
type RunPayload struct {
	InstitutionCode int    `json:"institution_code"`
	CutOffDate      string `json:"cut_off_date"`
}

// NewQueue initializes a new Queue instance with the provided configuration.
//
// Parameters:
// - conf *config.Configuration: The configuration for the queue.
//
// Returns:
// - *Queue: A pointer to the newly created Queue instance.
// - error: An error if the Redis address could not be parsed.
func NewQueue(conf *config.Configuration) (*Queue, error) {
	opt, err := redis_db.AsynqConnOpt(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %w", err)
	}
	return newQueue(opt, conf.Queue.RunQueue, conf.Queue.MaxRetryAttempts), nil
}

func newQueue(opt asynq.RedisClientOpt, queueName string, maxRetry int) *Queue {
	if queueName == "" {
		queueName = config.DEFAULT_RUN_QUEUE
	}
	return &Queue{
		Client:    asynq.NewClient(opt),
		Inspector: asynq.NewInspector(opt),
		queueName: queueName,
		maxRetry:  maxRetry,
	}
}

// Name is the asynq queue runs are placed on.
func (q *Queue) Name() string {
	return q.queueName
}

// runTaskID makes a second enqueue for the same institution and day a no-op
// while the first one is still pending.
func runTaskID(institutionCode int, cutOffDate string) string {
	return fmt.Sprintf("%d_%s", institutionCode, cutOffDate)
}

// EnqueueRun schedules a run-and-save. It fails with a conflict when the same run
// is already queued.
func (q *Queue) EnqueueRun(ctx context.Context, institutionCode int, cutOffDate string) (*asynq.TaskInfo, error) {
	ctx, span := otel.Tracer("Conciliation").Start(ctx, "Enqueue conciliation run")
	defer span.End()

	payload, err := json.Marshal(RunPayload{InstitutionCode: institutionCode, CutOffDate: cutOffDate})
	if err != nil {
		return nil, err
	}

	taskID := runTaskID(institutionCode, cutOffDate)
	info, err := q.Client.EnqueueContext(ctx,
		asynq.NewTask(TypeRunConciliation, payload),
		asynq.TaskID(taskID),
		asynq.Queue(q.queueName),
		asynq.MaxRetry(q.maxRetry),
	)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return nil, apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Run %s is already queued", taskID), nil)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to enqueue conciliation run", err)
	}
	return info, nil
}

// EnqueueRun validates the request and schedules a background run-and-save.
func (c *Conciliation) EnqueueRun(ctx context.Context, institutionCode int, cutOffDate string) (string, error) {
	if err := validateRunInput(institutionCode, cutOffDate); err != nil {
		return "", err
	}
	if _, err := model.ParseDate(cutOffDate, c.loc); err != nil {
		return "", apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), nil)
	}
	info, err := c.queue.EnqueueRun(ctx, institutionCode, cutOffDate)
	if err != nil {
		return "", err
	}
	logrus.WithFields(logrus.Fields{"task": info.ID, "queue": info.Queue}).Info("conciliation run queued")
	return info.ID, nil
}

// saveAttempts is how many times a background run retries a failed save.
func (q *Queue) saveAttempts() uint64 {
	if q == nil || q.maxRetry <= 0 {
		return 3
	}
	return uint64(q.maxRetry)
}

// retrySave persists an already computed header again under the run lock. Only
// persistence failures are retried; matching is never repeated.
func (c *Conciliation) retrySave(ctx context.Context, header *model.Conciliation) (int64, error) {
	ctx, span := otel.Tracer("Conciliation").Start(ctx, "Retry conciliation save")
	defer span.End()

	locker := redlock.NewRunLocker(c.redis, header.InstitutionCode, header.CutOffDate)
	if err := locker.WaitLock(ctx, c.lockTTL, c.lockWait); err != nil {
		if errors.Is(err, redlock.ErrLockNotAcquired) {
			return 0, apierror.NewAPIError(apierror.ErrConflict,
				fmt.Sprintf("A conciliation for institution %d on %s is already running", header.InstitutionCode, header.CutOffDate), nil)
		}
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to acquire run lock", err)
	}
	defer func() {
		if err := locker.Unlock(context.Background()); err != nil {
			logrus.WithError(err).WithField("key", locker.Key()).Warn("failed to release run lock")
		}
	}()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.saveRetryWait
	b.MaxElapsedTime = 0

	var id int64
	err := backoff.RetryNotify(func() error {
		var err error
		id, err = c.Save(ctx, header)
		if err == nil || apierror.Is(err, apierror.ErrPersistenceFailure) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(backoff.WithMaxRetries(b, c.queue.saveAttempts()), ctx), func(err error, wait time.Duration) {
		logrus.WithFields(logrus.Fields{
			"institution":  header.InstitutionCode,
			"cut_off_date": header.CutOffDate,
			"wait":         wait,
		}).WithError(err).Warn("retrying conciliation save")
	})
	return id, err
}

// ProcessRunTask is the asynq handler for TypeRunConciliation. Errors the caller
// cannot fix by retrying are returned wrapped in asynq.SkipRetry. When only the
// save failed the computed header is saved again and the task is not re-run.
func (c *Conciliation) ProcessRunTask(ctx context.Context, t *asynq.Task) error {
	ctx, span := otel.Tracer("Conciliation").Start(ctx, "Process conciliation run task")
	defer span.End()

	var payload RunPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		logrus.Error(err)
		return fmt.Errorf("decoding run payload: %v: %w", err, asynq.SkipRetry)
	}

	header, id, err := c.RunAndSave(ctx, payload.InstitutionCode, payload.CutOffDate)
	if err != nil && header != nil && apierror.Is(err, apierror.ErrPersistenceFailure) {
		id, err = c.retrySave(ctx, header)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("saving run %s: %w: %w", runTaskID(payload.InstitutionCode, payload.CutOffDate), err, asynq.SkipRetry)
		}
	}
	if err != nil {
		var apiErr apierror.APIError
		if errors.As(err, &apiErr) && !apiErr.Retryable() {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		logrus.Infof("Run %s pushed back for retry due to error: %v", runTaskID(payload.InstitutionCode, payload.CutOffDate), err)
		return err
	}

	logrus.WithFields(logrus.Fields{
		"id":           id,
		"institution":  header.InstitutionCode,
		"cut_off_date": header.CutOffDate,
		"status":       header.StatusConciliation.String(),
	}).Info(" [*] Conciliation run processed")
	return nil
}
