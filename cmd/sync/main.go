package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/grafikarchiv/grafikarchiv/pkg/config"
	"github.com/grafikarchiv/grafikarchiv/pkg/database"
	"github.com/grafikarchiv/grafikarchiv/pkg/migrations"
	"github.com/grafikarchiv/grafikarchiv/pkg/version"
	"github.com/grafikarchiv/grafikarchiv/pkg/worker"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/signals"
)

func main() {
	ctx := context.Background()
	log := logger.New()

	log.Info("starting grafikarchiv", logger.Data{"version": version.Version})

	cfg, err := config.New()
	if err != nil {
		log.Err(err).Fatal("config error")
	}

	if err := initMediaDir(cfg.MediaDir); err != nil {
		log.Err(err).Fatal("media directory error")
	}
	log.Info("media directory initialized", logger.Data{"path": cfg.MediaDir})

	db, err := database.New(cfg)
	if err != nil {
		log.Err(err).Fatal("database error")
	}

	group, err := migrations.BringUpToDate(ctx, db)
	if err != nil {
		log.Err(err).Fatal("migrations error")
	}
	if group.ID == 0 {
		log.Info("no new migrations to run")
	} else {
		log.Info("migrated to new group", logger.Data{"group_id": group.ID, "migration_names": group.Migrations.String()})
	}

	wrkr := worker.New(cfg, db)

	graceful := signals.Setup()

	wrkr.Start()
	log.Info("worker started", logger.Data{"poll_interval": cfg.PollInterval.String()})

	<-graceful
	log.Info("starting graceful shutdown")

	wrkr.Shutdown()
	log.Info("worker shutdown")

	err = db.Close()
	if err != nil {
		log.Err(err).Error("database close error")
	}
	log.Info("database closed")
}

// initMediaDir creates the thumbnail directory and verifies write
// permissions.
func initMediaDir(dir string) error {
	if err := os.MkdirAll(filepath.Join(dir, "thumbnails"), 0755); err != nil {
		return errors.Wrapf(err, "failed to create media directory: %s", dir)
	}

	testFile := filepath.Join(dir, ".write_test")
	f, err := os.Create(testFile)
	if err != nil {
		return errors.Wrapf(err, "media directory is not writable: %s", dir)
	}
	f.Close()

	if err := os.Remove(testFile); err != nil {
		return errors.Wrapf(err, "failed to clean up write test file: %s", testFile)
	}

	return nil
}
