package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/rewardledger/internal/auth"
	"github.com/dukerupert/rewardledger/internal/backup"
	"github.com/dukerupert/rewardledger/internal/config"
	"github.com/dukerupert/rewardledger/internal/database"
	"github.com/dukerupert/rewardledger/internal/digest"
	"github.com/dukerupert/rewardledger/internal/email"
	"github.com/dukerupert/rewardledger/internal/logging"
	"github.com/dukerupert/rewardledger/internal/moderation"
	"github.com/dukerupert/rewardledger/internal/push"
	"github.com/dukerupert/rewardledger/internal/referral"
	"github.com/dukerupert/rewardledger/internal/server"
	"github.com/dukerupert/rewardledger/internal/store"
	ws "github.com/dukerupert/rewardledger/internal/websocket"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "restore":
			if err := runRestore(cfg, os.Args[2:], logger); err != nil {
				slog.Error("restore failed", "error", err)
				os.Exit(1)
			}
			return
		case "vapid-keys":
			pub, priv, err := push.GenerateVAPIDKeys()
			if err != nil {
				slog.Error("generate VAPID keys", "error", err)
				os.Exit(1)
			}
			fmt.Printf("REWARD_VAPID_PUBLIC_KEY=%s\nREWARD_VAPID_PRIVATE_KEY=%s\n", pub, priv)
			return
		}
	}

	var db *sql.DB
	var collections store.Collections
	if cfg.DBPath == "" {
		logger.Warn("REWARD_DB_PATH not set, ledger is kept in memory only")
		collections = store.NewMemoryCollections()
	} else {
		db, err = database.Open(cfg.DBPath)
		if err != nil {
			slog.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		collections = store.NewSQLiteCollections(db)
	}

	accounts := store.NewAccountStore(collections)
	tasks := store.NewTaskStore(collections)
	pushSubs := store.NewPushStore(collections)
	admins := auth.ParseAdmins(cfg.AdminIDs)
	if len(admins.IDs()) == 0 {
		logger.Warn("REWARD_ADMIN_IDS not set, admin operations are disabled")
	}

	// Notification channels
	hub := ws.NewHub(logger.With("component", "websocket"))
	notifiers := moderation.Notifiers{hub}

	pushSvc := push.NewService(cfg.Notify.VAPIDPublicKey, cfg.Notify.VAPIDPrivateKey, cfg.Notify.PushSubscriber)
	var pushNotifier *push.Notifier
	if pushSvc.Configured() {
		pushNotifier = push.NewNotifier(pushSvc, pushSubs, admins, logger.With("component", "push"))
		notifiers = append(notifiers, pushNotifier)
	}

	var mailer *email.DigestMailer
	mailClient := email.NewClient(cfg.Notify.PostmarkToken, cfg.Notify.MailFrom)
	if mailClient.Configured() && len(cfg.Notify.AdminEmails) > 0 {
		mailer = email.NewDigestMailer(mailClient, cfg.Notify.AdminEmails, logger.With("component", "email"))
		notifiers = append(notifiers, mailer)
	}

	facade := moderation.New(moderation.Deps{
		Accounts:    accounts,
		Tasks:       tasks,
		Submissions: store.NewSubmissionStore(collections, accounts, tasks),
		Withdrawals: store.NewWithdrawalStore(collections, accounts, store.WithdrawalPolicy{
			MinAmount:         cfg.MinWithdrawal,
			MinDestinationLen: cfg.MinDestinationLen,
		}),
		Referrals: referral.NewEngine(accounts, referral.Config{
			RewardPerReferral: cfg.PerReferral,
			Milestones:        cfg.Milestones,
		}, logger.With("component", "referral")),
		Policy: admins,
	}, moderation.Options{
		SinglePendingPerTask: cfg.SinglePendingPerTask,
		Notifier:             notifiers,
		Logger:               logger,
	})

	var backups *backup.Manager
	if db != nil {
		backups = newBackupManager(cfg, db, hub, logger)
	}

	srvCfg := server.Config{
		AdminTokenHash:    cfg.AdminTokenHash,
		OriginPatterns:    cfg.WSOrigins,
		PushSubscriptions: pushSubs,
		VAPIDPublicKey:    pushSvc.VAPIDPublicKey(),
	}
	if backups != nil {
		srvCfg.Backups = backups
	}
	srv := server.New(facade, hub, srvCfg, logger)

	// Background jobs
	sched := digest.NewScheduler(logger.With("component", "digest"))
	if err := sched.AddDigest(cfg.DigestSchedule, facade); err != nil {
		slog.Error("invalid digest schedule", "error", err)
		os.Exit(1)
	}
	if err := sched.AddFunc("@hourly", "rate-limit-cleanup", srv.RateLimiter().Cleanup); err != nil {
		slog.Error("schedule cleanup", "error", err)
		os.Exit(1)
	}
	if backups != nil && backups.Enabled() {
		err := sched.AddFunc(cfg.Backup.Schedule, "backup", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()
			if _, err := backups.Run(ctx); err != nil {
				logger.Error("scheduled backup", "error", err)
			}
		})
		if err != nil {
			slog.Error("invalid backup schedule", "error", err)
			os.Exit(1)
		}
	}
	sched.Start()

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("reward ledger starting", "addr", ":"+cfg.Port, "persistent", cfg.DBPath != "")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	<-sched.Stop().Done()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
	if pushNotifier != nil {
		pushNotifier.Wait()
	}
	if mailer != nil {
		mailer.Wait()
	}
}

func newBackupManager(cfg *config.Config, db *sql.DB, hub *ws.Hub, logger *slog.Logger) *backup.Manager {
	b := cfg.Backup
	var onStatus backup.StatusCallback
	if hub != nil {
		onStatus = func(st backup.Status) {
			hub.Broadcast(ws.NewMessage("backup", string(st.State), st.LastKey, map[string]any{
				"error": st.Error,
			}))
		}
	}
	return backup.NewManager(backup.Config{
		S3: backup.S3Config{
			Endpoint:  b.Endpoint,
			Bucket:    b.Bucket,
			Region:    b.Region,
			AccessKey: b.AccessKey,
			SecretKey: b.SecretKey,
		},
		Passphrase:    b.Passphrase,
		RetentionDays: b.RetentionDays,
	}, db, onStatus, logger.With("component", "backup"))
}

// runRestore handles "rewardbot restore <key> <dst>". It writes the snapshot
// to dst and leaves the live database alone.
func runRestore(cfg *config.Config, args []string, logger *slog.Logger) error {
	if len(args) != 2 {
		return errors.New("usage: rewardbot restore <key> <dst>")
	}
	m := newBackupManager(cfg, nil, nil, logger)
	if !m.Enabled() {
		return backup.ErrDisabled
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	if err := m.Restore(ctx, args[0], args[1]); err != nil {
		return err
	}
	logger.Info("snapshot restored", "key", args[0], "path", args[1])
	return nil
}
