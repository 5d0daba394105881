package config

import (
	"os"
	"path/filepath"
	"testing"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(envMap(nil))
	if err != nil {
		t.Fatalf("from env: %v", err)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("Port = %q, want %q", cfg.Port, DefaultPort)
	}
	if cfg.DBPath != "" {
		t.Errorf("DBPath = %q, want empty", cfg.DBPath)
	}
	if cfg.PerReferral != DefaultPerReferral {
		t.Errorf("PerReferral = %d, want %d", cfg.PerReferral, DefaultPerReferral)
	}
	if cfg.MinWithdrawal != DefaultMinWithdrawal {
		t.Errorf("MinWithdrawal = %d, want %d", cfg.MinWithdrawal, DefaultMinWithdrawal)
	}
	if len(cfg.Milestones) != 3 || cfg.Milestones[0].Threshold != 5 {
		t.Errorf("Milestones = %+v", cfg.Milestones)
	}
	if cfg.SinglePendingPerTask {
		t.Error("SinglePendingPerTask = true, want false")
	}
	if cfg.DigestSchedule != DefaultDigestSchedule {
		t.Errorf("DigestSchedule = %q", cfg.DigestSchedule)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	cfg, err := FromEnv(envMap(map[string]string{
		"REWARD_PORT":                "9000",
		"REWARD_DB_PATH":             "ledger.db",
		"REWARD_PER_REFERRAL":        "3",
		"REWARD_MILESTONES":          "10:25",
		"REWARD_MIN_WITHDRAWAL":      "50",
		"REWARD_MIN_DESTINATION_LEN": "8",
		"REWARD_SINGLE_PENDING":      "true",
		"REWARD_ADMIN_IDS":           "1,2",
		"REWARD_WS_ORIGINS":          "admin.example.com, ,*.example.org",
	}))
	if err != nil {
		t.Fatalf("from env: %v", err)
	}
	if cfg.Port != "9000" || cfg.DBPath != "ledger.db" {
		t.Errorf("Port/DBPath = %q/%q", cfg.Port, cfg.DBPath)
	}
	if cfg.PerReferral != 3 || cfg.MinWithdrawal != 50 || cfg.MinDestinationLen != 8 {
		t.Errorf("numbers = %d/%d/%d", cfg.PerReferral, cfg.MinWithdrawal, cfg.MinDestinationLen)
	}
	if len(cfg.Milestones) != 1 || cfg.Milestones[0].Bonus != 25 {
		t.Errorf("Milestones = %+v", cfg.Milestones)
	}
	if !cfg.SinglePendingPerTask {
		t.Error("SinglePendingPerTask = false, want true")
	}
	if cfg.AdminIDs != "1,2" {
		t.Errorf("AdminIDs = %q", cfg.AdminIDs)
	}
	if len(cfg.WSOrigins) != 2 || cfg.WSOrigins[1] != "*.example.org" {
		t.Errorf("WSOrigins = %v", cfg.WSOrigins)
	}
}

func TestFromEnvInvalid(t *testing.T) {
	for _, env := range []map[string]string{
		{"REWARD_PER_REFERRAL": "two"},
		{"REWARD_MIN_WITHDRAWAL": "-1"},
		{"REWARD_MILESTONES": "5"},
		{"REWARD_SINGLE_PENDING": "maybe"},
	} {
		if _, err := FromEnv(envMap(env)); err == nil {
			t.Errorf("%v: expected error", env)
		}
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("REWARD_LOG_FORMAT=json\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("REWARD_LOG_FORMAT", "")
	os.Unsetenv("REWARD_LOG_FORMAT")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, want %q", cfg.LogFormat, "json")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Errorf("missing .env: %v", err)
	}
}

func TestFromEnvBackup(t *testing.T) {
	cfg, err := FromEnv(envMap(nil))
	if err != nil {
		t.Fatalf("from env: %v", err)
	}
	if cfg.Backup.Schedule != DefaultBackupSchedule || cfg.Backup.RetentionDays != DefaultBackupRetention {
		t.Errorf("Backup defaults = %+v", cfg.Backup)
	}

	cfg, err = FromEnv(envMap(map[string]string{
		"REWARD_BACKUP_BUCKET":         "ledger-snapshots",
		"REWARD_BACKUP_ENDPOINT":       "https://s3.example.com",
		"REWARD_BACKUP_PASSPHRASE":     "hunter2",
		"REWARD_BACKUP_RETENTION_DAYS": "7",
	}))
	if err != nil {
		t.Fatalf("from env: %v", err)
	}
	if cfg.Backup.Bucket != "ledger-snapshots" || cfg.Backup.Endpoint != "https://s3.example.com" {
		t.Errorf("Backup = %+v", cfg.Backup)
	}
	if cfg.Backup.RetentionDays != 7 || cfg.Backup.Region != "us-east-1" {
		t.Errorf("RetentionDays/Region = %d/%q", cfg.Backup.RetentionDays, cfg.Backup.Region)
	}
}

func TestFromEnvNotify(t *testing.T) {
	cfg, err := FromEnv(envMap(map[string]string{
		"REWARD_VAPID_PUBLIC_KEY":  "pub",
		"REWARD_VAPID_PRIVATE_KEY": "priv",
		"REWARD_POSTMARK_TOKEN":    "tok",
		"REWARD_ADMIN_EMAILS":      "a@example.com,b@example.com",
	}))
	if err != nil {
		t.Fatalf("from env: %v", err)
	}
	n := cfg.Notify
	if n.VAPIDPublicKey != "pub" || n.VAPIDPrivateKey != "priv" {
		t.Errorf("VAPID keys = %q/%q", n.VAPIDPublicKey, n.VAPIDPrivateKey)
	}
	if n.PushSubscriber != "mailto:admin@localhost" {
		t.Errorf("PushSubscriber = %q", n.PushSubscriber)
	}
	if n.PostmarkToken != "tok" || len(n.AdminEmails) != 2 {
		t.Errorf("mail = %q %v", n.PostmarkToken, n.AdminEmails)
	}
}
