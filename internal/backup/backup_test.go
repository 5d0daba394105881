package backup

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/dukerupert/rewardledger/internal/database"
)

// mockS3Client implements s3Client for testing.
type mockS3Client struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte)}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, _ := io.ReadAll(input.Body)
	m.objects[*input.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[*input.Key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{
		Body: io.NopCloser(strings.NewReader(string(data))),
	}, nil
}

func (m *mockS3Client) DeleteObject(_ context.Context, input *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, *input.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (m *mockS3Client) ListObjectsV2(_ context.Context, input *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out s3.ListObjectsV2Output
	for key := range m.objects {
		if strings.HasPrefix(key, aws.ToString(input.Prefix)) {
			out.Contents = append(out.Contents, types.Object{Key: aws.String(key)})
		}
	}
	return &out, nil
}

func (m *mockS3Client) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var testS3 = S3Config{Bucket: "test", AccessKey: "key", SecretKey: "secret"}

func setupBackupTestDB(t *testing.T, mock *mockS3Client, cb StatusCallback) *Manager {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := db.Exec(`INSERT INTO accounts (key, value) VALUES ('1', '{"id":"1","balance":7}')`); err != nil {
		t.Fatalf("seed account: %v", err)
	}

	m := NewManager(Config{S3: testS3, Passphrase: "pw", RetentionDays: 7}, db, cb, slog.Default())
	m.client = mock
	m.now = func() time.Time { return time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC) }
	return m
}

func TestManagerStateLifecycle(t *testing.T) {
	m := NewManager(Config{}, nil, nil, slog.Default())
	if m.Status().State != StateDisabled {
		t.Errorf("state = %q, want %q", m.Status().State, StateDisabled)
	}
	if _, err := m.Run(context.Background()); !errors.Is(err, ErrDisabled) {
		t.Errorf("run disabled: err = %v, want ErrDisabled", err)
	}

	noPass := NewManager(Config{S3: testS3}, nil, nil, slog.Default())
	if noPass.Enabled() {
		t.Error("expected manager without passphrase to be disabled")
	}

	m2 := NewManager(Config{S3: testS3, Passphrase: "pw"}, nil, nil, slog.Default())
	if m2.Status().State != StateIdle {
		t.Errorf("state = %q, want %q", m2.Status().State, StateIdle)
	}
}

func TestRunUploadsAndRestores(t *testing.T) {
	mock := newMockS3()
	var states []State
	m := setupBackupTestDB(t, mock, func(s Status) { states = append(states, s.State) })

	key, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if key != "ledger/backup-2026-03-10T030000Z.db.enc" {
		t.Errorf("key = %q", key)
	}
	if len(states) != 2 || states[0] != StateRunning || states[1] != StateIdle {
		t.Errorf("states = %v, want [running idle]", states)
	}
	if st := m.Status(); st.LastKey != key || st.LastBackup == nil {
		t.Errorf("status = %+v", st)
	}

	dst := filepath.Join(t.TempDir(), "restored.db")
	if err := m.Restore(context.Background(), key, dst); err != nil {
		t.Fatalf("restore: %v", err)
	}
	restored, err := sql.Open("sqlite", dst)
	if err != nil {
		t.Fatalf("open restored: %v", err)
	}
	defer restored.Close()

	var value string
	if err := restored.QueryRow("SELECT value FROM accounts WHERE key = '1'").Scan(&value); err != nil {
		t.Fatalf("query restored: %v", err)
	}
	if !strings.Contains(value, `"balance":7`) {
		t.Errorf("restored value = %q", value)
	}
}

func TestRunUploadFailure(t *testing.T) {
	mock := newMockS3()
	mock.putErr = errors.New("bucket gone")
	m := setupBackupTestDB(t, mock, nil)

	if _, err := m.Run(context.Background()); err == nil {
		t.Fatal("expected upload error")
	}
	if st := m.Status(); st.State != StateError || st.Error == "" {
		t.Errorf("status = %+v, want error state", st)
	}
}

func TestRunPrunesExpired(t *testing.T) {
	mock := newMockS3()
	mock.objects["ledger/backup-2026-02-01T030000Z.db.enc"] = []byte("old")
	mock.objects["ledger/backup-2026-03-08T030000Z.db.enc"] = []byte("recent")
	mock.objects["ledger/notes.txt"] = []byte("unrelated")
	m := setupBackupTestDB(t, mock, nil)

	if _, err := m.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	got := mock.keys()
	want := []string{
		"ledger/backup-2026-03-08T030000Z.db.enc",
		"ledger/backup-2026-03-10T030000Z.db.enc",
		"ledger/notes.txt",
	}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("keys = %v, want %v", got, want)
	}
}

func TestRestoreWrongPassphrase(t *testing.T) {
	mock := newMockS3()
	m := setupBackupTestDB(t, mock, nil)
	key, _ := m.Run(context.Background())

	m.cfg.Passphrase = "other"
	if err := m.Restore(context.Background(), key, filepath.Join(t.TempDir(), "x.db")); err == nil {
		t.Fatal("expected decrypt error")
	}
}

func TestParseKeyTime(t *testing.T) {
	at, ok := parseKeyTime("ledger/backup-2026-03-10T030000Z.db.enc")
	if !ok || !at.Equal(time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)) {
		t.Errorf("parseKeyTime = %v, %v", at, ok)
	}
	if _, ok := parseKeyTime("ledger/notes.txt"); ok {
		t.Error("expected unrelated key not to parse")
	}
}
