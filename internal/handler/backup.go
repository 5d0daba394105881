package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/rewardledger/internal/backup"
)

// Backups is the subset of backup.Manager the admin routes drive.
type Backups interface {
	Status() backup.Status
	Run(ctx context.Context) (string, error)
}

type BackupHandler struct {
	backups Backups
	logger  *slog.Logger
}

func NewBackupHandler(b Backups, logger *slog.Logger) *BackupHandler {
	return &BackupHandler{backups: b, logger: logger}
}

func (h *BackupHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.backups.Status())
}

// Run takes a snapshot now. The upload outlives the request so a client
// disconnect does not abort it.
func (h *BackupHandler) Run(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 10*time.Minute)
	defer cancel()

	key, err := h.backups.Run(ctx)
	if errors.Is(err, backup.ErrDisabled) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "backups are not configured"})
		return
	}
	if err != nil {
		h.logger.Error("manual backup", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "backup failed"})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"key": key})
}
