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

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT              = "5001"
	DEFAULT_TIMEZONE          = "America/Guayaquil"
	DEFAULT_FETCH_TIMEOUT     = 30
	DEFAULT_TRANSACTIONS_PATH = "/api/v1/transactions/transactionReconciliationList"
	DEFAULT_RUN_QUEUE         = "conciliation_runs"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"CONCILIATION_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"CONCILIATION_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"CONCILIATION_SERVER_SECRET_KEY"`
	Domain    string `json:"domain" envconfig:"CONCILIATION_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"CONCILIATION_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"CONCILIATION_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"CONCILIATION_DATA_SOURCE_DNS"`
}

// SwitchLedgerConfig points at the core switch database the switch side is imported from.
type SwitchLedgerConfig struct {
	Driver string `json:"driver" envconfig:"CONCILIATION_SWITCH_LEDGER_DRIVER"`
	Dns    string `json:"dns" envconfig:"CONCILIATION_SWITCH_LEDGER_DNS"`
	Schema string `json:"schema" envconfig:"CONCILIATION_SWITCH_LEDGER_SCHEMA"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"CONCILIATION_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"CONCILIATION_REDIS_SKIP_TLS_VERIFY"`
}

// EncryptionConfig holds the key ring used for account fields at rest.
// Keys maps a key id to a base64 encoded 32 byte key.
type EncryptionConfig struct {
	ActiveKeyID string            `json:"active_key_id" envconfig:"CONCILIATION_ENCRYPTION_ACTIVE_KEY_ID"`
	Key         string            `json:"key" envconfig:"CONCILIATION_ENCRYPTION_KEY"`
	Keys        map[string]string `json:"keys"`
}

type InstitutionServiceConfig struct {
	ProxyURL        string   `json:"proxy_url" envconfig:"CONCILIATION_INSTITUTION_PROXY_URL"`
	TransactionPath string   `json:"transaction_path" envconfig:"CONCILIATION_INSTITUTION_TRANSACTION_PATH"`
	TimeoutSeconds  int      `json:"timeout_seconds" envconfig:"CONCILIATION_INSTITUTION_TIMEOUT_SECONDS"`
	ServiceList     []string `json:"service_list" envconfig:"CONCILIATION_INSTITUTION_SERVICE_LIST"`
	SkipTLSVerify   bool     `json:"skip_tls_verify" envconfig:"CONCILIATION_INSTITUTION_SKIP_TLS_VERIFY"`
}

type ConciliationConfig struct {
	DuplicateKeyPolicy  string `json:"duplicate_key_policy" envconfig:"CONCILIATION_DUPLICATE_KEY_POLICY"`
	FetchTimeoutSeconds int    `json:"fetch_timeout_seconds" envconfig:"CONCILIATION_FETCH_TIMEOUT_SECONDS"`
	TimeZone            string `json:"time_zone" envconfig:"CONCILIATION_TIME_ZONE"`
	LockTimeoutSeconds  int    `json:"lock_timeout_seconds" envconfig:"CONCILIATION_LOCK_TIMEOUT_SECONDS"`
	LockWaitSeconds     int    `json:"lock_wait_seconds" envconfig:"CONCILIATION_LOCK_WAIT_SECONDS"`
	InstitutionCacheTTL int    `json:"institution_cache_ttl_seconds" envconfig:"CONCILIATION_INSTITUTION_CACHE_TTL_SECONDS"`
}

type QueueConfig struct {
	RunQueue         string `json:"run_queue" envconfig:"CONCILIATION_QUEUE_RUN_QUEUE"`
	Concurrency      int    `json:"concurrency" envconfig:"CONCILIATION_QUEUE_CONCURRENCY"`
	MaxRetryAttempts int    `json:"max_retry_attempts" envconfig:"CONCILIATION_QUEUE_MAX_RETRY_ATTEMPTS"`
	MonitoringPort   string `json:"monitoring_port" envconfig:"CONCILIATION_QUEUE_MONITORING_PORT"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"CONCILIATION_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"CONCILIATION_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"CONCILIATION_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url" envconfig:"CONCILIATION_SLACK_WEBHOOK_URL"`
}

type Notification struct {
	Slack SlackWebhook `json:"slack"`
}

type Configuration struct {
	ProjectName        string                   `json:"project_name" envconfig:"CONCILIATION_PROJECT_NAME"`
	EnableTelemetry    bool                     `json:"enable_telemetry" envconfig:"CONCILIATION_ENABLE_TELEMETRY"`
	PostHogKey         string                   `json:"posthog_key" envconfig:"CONCILIATION_POSTHOG_KEY"`
	Server             ServerConfig             `json:"server"`
	DataSource         DataSourceConfig         `json:"data_source"`
	SwitchLedger       SwitchLedgerConfig       `json:"switch_ledger"`
	Redis              RedisConfig              `json:"redis"`
	Encryption         EncryptionConfig         `json:"encryption"`
	InstitutionService InstitutionServiceConfig `json:"institution_service"`
	Conciliation       ConciliationConfig       `json:"conciliation"`
	Queue              QueueConfig              `json:"queue"`
	Notification       Notification             `json:"notification"`
	RateLimit          RateLimitConfig          `json:"rate_limit"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("conciliation", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called conciliation.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Conciliation Server"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	if cnf.Encryption.Key == "" && len(cnf.Encryption.Keys) == 0 {
		log.Println("Error: Encryption key is empty. It's a required field.")
		return errors.New("encryption key is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)
	cnf.SwitchLedger.Dns = strings.TrimSpace(cnf.SwitchLedger.Dns)

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.SwitchLedger.Driver == "" {
		cnf.SwitchLedger.Driver = "postgres"
	}
	if cnf.SwitchLedger.Schema == "" {
		cnf.SwitchLedger.Schema = "gti_transacciones"
	}

	if cnf.Encryption.ActiveKeyID == "" {
		cnf.Encryption.ActiveKeyID = "v1"
	}

	if cnf.InstitutionService.TransactionPath == "" {
		cnf.InstitutionService.TransactionPath = DEFAULT_TRANSACTIONS_PATH
	}
	if cnf.InstitutionService.TimeoutSeconds <= 0 {
		cnf.InstitutionService.TimeoutSeconds = DEFAULT_FETCH_TIMEOUT
	}

	if cnf.Conciliation.TimeZone == "" {
		cnf.Conciliation.TimeZone = DEFAULT_TIMEZONE
	}
	if _, err := time.LoadLocation(cnf.Conciliation.TimeZone); err != nil {
		return errors.New("invalid conciliation time zone")
	}
	if cnf.Conciliation.DuplicateKeyPolicy == "" {
		cnf.Conciliation.DuplicateKeyPolicy = "keep_first"
	}
	switch cnf.Conciliation.DuplicateKeyPolicy {
	case "keep_first", "keep_last", "reject":
	default:
		return errors.New("duplicate key policy must be one of keep_first, keep_last, reject")
	}
	if cnf.Conciliation.FetchTimeoutSeconds <= 0 {
		cnf.Conciliation.FetchTimeoutSeconds = DEFAULT_FETCH_TIMEOUT
	}
	if cnf.Conciliation.LockTimeoutSeconds <= 0 {
		cnf.Conciliation.LockTimeoutSeconds = 120
	}
	if cnf.Conciliation.LockWaitSeconds <= 0 {
		cnf.Conciliation.LockWaitSeconds = 5
	}
	if cnf.Conciliation.InstitutionCacheTTL <= 0 {
		cnf.Conciliation.InstitutionCacheTTL = 300
	}

	if cnf.Queue.RunQueue == "" {
		cnf.Queue.RunQueue = DEFAULT_RUN_QUEUE
	}
	if cnf.Queue.Concurrency <= 0 {
		cnf.Queue.Concurrency = 2
	}
	if cnf.Queue.MaxRetryAttempts <= 0 {
		cnf.Queue.MaxRetryAttempts = 3
	}
	if cnf.Queue.MonitoringPort == "" {
		cnf.Queue.MonitoringPort = "5004"
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", defaultBurst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", defaultRPS)
	}
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	return nil
}

// Location returns the business calendar location runs are evaluated in.
func (cnf *Configuration) Location() *time.Location {
	loc, err := time.LoadLocation(cnf.Conciliation.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
