package startup

import (
	"log/slog"

	"github.com/mixaill76/log_analyzer/internal/archive"
	"github.com/mixaill76/log_analyzer/internal/config"
)

// ValidateLogDirAtStartup resolves the log directory layout before anything
// else is started. A missing or unwritable current/ folder is fatal; a
// missing archive/ folder is created.
func ValidateLogDirAtStartup(cfg *config.Config, log *slog.Logger) (*archive.Layout, error) {
	layout, err := archive.Resolve(cfg.Dir, cfg.Location(), log)
	if err != nil {
		return nil, err
	}

	pending, err := layout.Pending()
	if err != nil {
		return nil, err
	}

	log.Info("Log directory ready",
		"current", layout.Current,
		"archive", layout.Archive,
		"pending_files", len(pending),
	)
	if len(pending) == 0 {
		log.Debug("No completed files in current/ yet; the newest file is always left for the writer")
	}
	return layout, nil
}
