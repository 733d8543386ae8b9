// codesyncd is the collaborative code editor sync server: one
// authoritative document per room, edits relayed to peers and applied
// in arrival order.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codesync/internal/api"
	"codesync/internal/archive"
	"codesync/internal/collab"
	"codesync/internal/config"
	"codesync/internal/room"
	"codesync/internal/snapshot"
	"codesync/internal/store"
	"codesync/internal/ws"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	docs := store.New()

	snapshots, err := openSnapshotStore(ctx, cfg)
	if err != nil {
		return err
	}
	if snapshots != nil {
		defer snapshots.Close()
		restored, err := snapshots.LoadAll(ctx)
		if err != nil {
			return err
		}
		for roomID, doc := range restored {
			docs.Restore(roomID, doc)
		}
		slog.Info("restored room snapshots", "backend", cfg.SnapshotBackend, "rooms", len(restored))

		docs.OnChange(func(roomID string, doc store.Document) {
			if err := snapshots.Save(context.Background(), roomID, doc); err != nil {
				slog.Error("snapshot save failed", "room", roomID, "error", err)
			}
		})
	}

	var roomArchive *archive.Postgres
	if cfg.DatabaseURL != "" {
		roomArchive, err = archive.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer roomArchive.Close()
		slog.Info("room archive enabled")
	}

	reg := room.NewRegistry(func(roomID string) {
		if doc, ok := docs.Snapshot(roomID); ok && roomArchive != nil {
			saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := roomArchive.SaveFinal(saveCtx, roomID, doc); err != nil {
				slog.Error("room archive failed", "room", roomID, "error", err)
			}
		}
		docs.Delete(roomID)
		if snapshots != nil {
			if err := snapshots.Delete(context.Background(), roomID); err != nil {
				slog.Error("snapshot delete failed", "room", roomID, "error", err)
			}
		}
	})

	wsServer := ws.NewServer(reg,
		collab.NewDocumentCoordinator(docs, reg),
		collab.NewLanguageCoordinator(docs, reg),
		collab.NewNotepadCoordinator(docs, reg),
	)

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: api.NewRouter(wsServer.Handle, reg, docs),
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("codesync server listening", "addr", cfg.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return nil
	}
}

func openSnapshotStore(ctx context.Context, cfg config.Config) (snapshot.Store, error) {
	switch cfg.SnapshotBackend {
	case "":
		return nil, nil
	case "redis":
		return snapshot.NewRedis(ctx, cfg.RedisURL)
	case "bolt":
		return snapshot.NewBolt(cfg.BoltPath)
	default:
		return nil, errors.New("unknown snapshot backend " + cfg.SnapshotBackend)
	}
}
