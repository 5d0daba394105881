// Package config loads runtime settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/dukerupert/rewardledger/internal/referral"
)

const (
	DefaultPort              = "8080"
	DefaultPerReferral       = 2
	DefaultMilestones        = "5:10,10:25,25:75"
	DefaultMinWithdrawal     = 10
	DefaultMinDestinationLen = 5
	DefaultDigestSchedule    = "0 */6 * * *"
	DefaultBackupSchedule    = "0 3 * * *"
	DefaultBackupRetention   = 30
)

type Config struct {
	Port      string
	DBPath    string
	LogLevel  string
	LogFormat string

	AdminIDs       string
	AdminTokenHash string

	PerReferral          int
	Milestones           []referral.Milestone
	MinWithdrawal        int
	MinDestinationLen    int
	SinglePendingPerTask bool
	DigestSchedule       string
	WSOrigins            []string

	Backup Backup
	Notify Notify
}

// Notify configures the Web Push and digest mail channels. Each channel is
// off until its credentials are set.
type Notify struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	PushSubscriber  string

	PostmarkToken string
	MailFrom      string
	AdminEmails   []string
}

// Backup configures encrypted ledger snapshots. Snapshots are disabled
// unless a bucket, credentials and a passphrase are all set.
type Backup struct {
	Bucket        string
	Endpoint      string
	Region        string
	AccessKey     string
	SecretKey     string
	Passphrase    string
	Schedule      string
	RetentionDays int
}

// Load reads the .env file at path when it exists, then the environment.
// Variables already set in the environment win over the file.
func Load(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv, applying defaults for unset values.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		Port:           orDefault(getenv("REWARD_PORT"), DefaultPort),
		DBPath:         getenv("REWARD_DB_PATH"),
		LogLevel:       getenv("REWARD_LOG_LEVEL"),
		LogFormat:      getenv("REWARD_LOG_FORMAT"),
		AdminIDs:       getenv("REWARD_ADMIN_IDS"),
		AdminTokenHash: getenv("REWARD_ADMIN_TOKEN_HASH"),
		DigestSchedule: orDefault(getenv("REWARD_DIGEST_SCHEDULE"), DefaultDigestSchedule),
		WSOrigins:      splitList(getenv("REWARD_WS_ORIGINS")),
		Notify: Notify{
			VAPIDPublicKey:  getenv("REWARD_VAPID_PUBLIC_KEY"),
			VAPIDPrivateKey: getenv("REWARD_VAPID_PRIVATE_KEY"),
			PushSubscriber:  orDefault(getenv("REWARD_PUSH_SUBSCRIBER"), "mailto:admin@localhost"),
			PostmarkToken:   getenv("REWARD_POSTMARK_TOKEN"),
			MailFrom:        getenv("REWARD_MAIL_FROM"),
			AdminEmails:     splitList(getenv("REWARD_ADMIN_EMAILS")),
		},
		Backup: Backup{
			Bucket:     getenv("REWARD_BACKUP_BUCKET"),
			Endpoint:   getenv("REWARD_BACKUP_ENDPOINT"),
			Region:     orDefault(getenv("REWARD_BACKUP_REGION"), "us-east-1"),
			AccessKey:  getenv("REWARD_BACKUP_ACCESS_KEY"),
			SecretKey:  getenv("REWARD_BACKUP_SECRET_KEY"),
			Passphrase: getenv("REWARD_BACKUP_PASSPHRASE"),
			Schedule:   orDefault(getenv("REWARD_BACKUP_SCHEDULE"), DefaultBackupSchedule),
		},
	}

	var err error
	if cfg.PerReferral, err = intVar(getenv, "REWARD_PER_REFERRAL", DefaultPerReferral); err != nil {
		return nil, err
	}
	if cfg.MinWithdrawal, err = intVar(getenv, "REWARD_MIN_WITHDRAWAL", DefaultMinWithdrawal); err != nil {
		return nil, err
	}
	if cfg.MinDestinationLen, err = intVar(getenv, "REWARD_MIN_DESTINATION_LEN", DefaultMinDestinationLen); err != nil {
		return nil, err
	}

	if cfg.Backup.RetentionDays, err = intVar(getenv, "REWARD_BACKUP_RETENTION_DAYS", DefaultBackupRetention); err != nil {
		return nil, err
	}

	milestones := getenv("REWARD_MILESTONES")
	if milestones == "" {
		milestones = DefaultMilestones
	}
	if cfg.Milestones, err = referral.ParseMilestones(milestones); err != nil {
		return nil, fmt.Errorf("REWARD_MILESTONES: %w", err)
	}

	if v := getenv("REWARD_SINGLE_PENDING"); v != "" {
		cfg.SinglePendingPerTask, err = strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("REWARD_SINGLE_PENDING: %w", err)
		}
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func intVar(getenv func(string) string, key string, def int) (int, error) {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("%s: must not be negative", key)
	}
	return n, nil
}
