// Package backup writes encrypted snapshots of the SQLite ledger to
// S3-compatible storage and prunes them after a retention period.
package backup

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dukerupert/rewardledger/internal/database"
)

const (
	keyPrefix    = "ledger/"
	keyTimestamp = "2006-01-02T150405Z"
)

// ErrDisabled is returned when no bucket or credentials are configured.
var ErrDisabled = errors.New("backup not configured")

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, input *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

func (c S3Config) complete() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

type Config struct {
	S3            S3Config
	Passphrase    string
	RetentionDays int
}

// State represents the backup manager state.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateDisabled State = "disabled"
	StateError    State = "error"
)

// Status holds the current backup manager status.
type Status struct {
	State      State      `json:"state"`
	LastBackup *time.Time `json:"last_backup,omitempty"`
	LastKey    string     `json:"last_key,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// StatusCallback is called whenever the backup state changes.
type StatusCallback func(Status)

// Manager snapshots the ledger database. Runs are serialized.
type Manager struct {
	mu       sync.RWMutex
	run      sync.Mutex
	cfg      Config
	status   Status
	callback StatusCallback

	db     *sql.DB
	client s3Client
	now    func() time.Time
	logger *slog.Logger
}

func NewManager(cfg Config, db *sql.DB, callback StatusCallback, logger *slog.Logger) *Manager {
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 30
	}
	m := &Manager{
		cfg:      cfg,
		db:       db,
		callback: callback,
		status:   Status{State: StateDisabled},
		now:      time.Now,
		logger:   logger,
	}
	if cfg.S3.complete() && cfg.Passphrase != "" {
		m.client = newS3Client(cfg.S3)
		m.status.State = StateIdle
	}
	return m
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Enabled reports whether snapshots can be taken.
func (m *Manager) Enabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.client != nil
}

// Status returns the current backup status.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	if s.LastBackup == nil {
		s.LastBackup = m.status.LastBackup
		s.LastKey = m.status.LastKey
	}
	m.status = s
	m.mu.Unlock()
	if m.callback != nil {
		m.callback(s)
	}
}

func (m *Manager) fail(err error) error {
	m.setStatus(Status{State: StateError, Error: err.Error()})
	return err
}

// Run takes a consistent copy of the database with VACUUM INTO, encrypts it,
// uploads it and prunes snapshots past retention. It returns the object key.
func (m *Manager) Run(ctx context.Context) (string, error) {
	m.run.Lock()
	defer m.run.Unlock()

	m.mu.RLock()
	client := m.client
	bucket := m.cfg.S3.Bucket
	m.mu.RUnlock()
	if client == nil {
		return "", ErrDisabled
	}

	m.setStatus(Status{State: StateRunning})

	startedAt := m.now().UTC()
	key := keyPrefix + "backup-" + startedAt.Format(keyTimestamp) + ".db.enc"

	tmp, err := os.MkdirTemp("", "rewardledger-backup-")
	if err != nil {
		return "", m.fail(fmt.Errorf("create temp dir: %w", err))
	}
	defer os.RemoveAll(tmp)

	snapshot := filepath.Join(tmp, "ledger.db")
	if err := database.Snapshot(ctx, m.db, snapshot); err != nil {
		return "", m.fail(err)
	}
	plaintext, err := os.ReadFile(snapshot)
	if err != nil {
		return "", m.fail(fmt.Errorf("read snapshot: %w", err))
	}
	sealed, err := Seal(plaintext, m.cfg.Passphrase)
	if err != nil {
		return "", m.fail(err)
	}

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(sealed),
		ContentLength: aws.Int64(int64(len(sealed))),
	})
	if err != nil {
		return "", m.fail(fmt.Errorf("upload to s3: %w", err))
	}

	if err := m.prune(ctx, client, bucket); err != nil {
		m.logger.Error("prune backups", "error", err)
	}

	m.setStatus(Status{State: StateIdle, LastBackup: &startedAt, LastKey: key})
	m.logger.Info("backup uploaded", "key", key, "bytes", len(sealed))
	return key, nil
}

// prune deletes snapshots whose key timestamp is older than the retention.
func (m *Manager) prune(ctx context.Context, client s3Client, bucket string) error {
	cutoff := m.now().UTC().AddDate(0, 0, -m.cfg.RetentionDays)

	out, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(keyPrefix),
	})
	if err != nil {
		return fmt.Errorf("list backups: %w", err)
	}

	for _, obj := range out.Contents {
		key := aws.ToString(obj.Key)
		at, ok := parseKeyTime(key)
		if !ok || !at.Before(cutoff) {
			continue
		}
		if _, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		}); err != nil {
			m.logger.Error("delete backup object", "key", key, "error", err)
			continue
		}
		m.logger.Info("backup pruned", "key", key)
	}
	return nil
}

func parseKeyTime(key string) (time.Time, bool) {
	name := strings.TrimPrefix(key, keyPrefix+"backup-")
	name = strings.TrimSuffix(name, ".db.enc")
	t, err := time.Parse(keyTimestamp, name)
	return t, err == nil
}

// Restore downloads the snapshot at key, decrypts it and writes it to
// dstPath after an integrity check. The live database is never touched.
func (m *Manager) Restore(ctx context.Context, key, dstPath string) error {
	m.mu.RLock()
	client := m.client
	bucket := m.cfg.S3.Bucket
	m.mu.RUnlock()
	if client == nil {
		return ErrDisabled
	}

	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("download from s3: %w", err)
	}
	defer result.Body.Close()

	sealed, err := io.ReadAll(result.Body)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	plaintext, err := Open(sealed, m.cfg.Passphrase)
	if err != nil {
		return fmt.Errorf("decrypt snapshot: %w", err)
	}
	if err := os.WriteFile(dstPath, plaintext, 0600); err != nil {
		return fmt.Errorf("write restored db: %w", err)
	}

	restored, err := sql.Open("sqlite", dstPath)
	if err != nil {
		return fmt.Errorf("open restored db: %w", err)
	}
	defer restored.Close()

	return database.IntegrityCheck(ctx, restored)
}
