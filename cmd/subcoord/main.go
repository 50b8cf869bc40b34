package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/christian-lee/subcoord/internal/clock"
	"github.com/christian-lee/subcoord/internal/config"
	"github.com/christian-lee/subcoord/internal/control"
	"github.com/christian-lee/subcoord/internal/engine"
	"github.com/christian-lee/subcoord/internal/export"
	"github.com/christian-lee/subcoord/internal/hub"
	"github.com/christian-lee/subcoord/internal/playlist"
	"github.com/christian-lee/subcoord/internal/presence"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if len(os.Args) < 2 {
		fmt.Println("Usage:")
		fmt.Println("  subcoord run [config]     Start the subtitling coordination server")
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		cfgPath := "config.yaml"
		if len(os.Args) > 2 {
			cfgPath = os.Args[2]
		}
		if err := run(cfgPath); err != nil {
			slog.Error("run failed", "err", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	hotCfg, err := config.NewHotConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := hotCfg.Get()

	c := clock.New()
	h := hub.New()
	eng := engine.New(c, h, 0)

	if dbPath := os.Getenv("SUBCOORD_EXPORT_DB"); dbPath != "" {
		sink, err := export.NewSQLiteSink(dbPath)
		if err != nil {
			return fmt.Errorf("open export sink: %w", err)
		}
		eng.SetExportSink(sink)
		defer sink.Close()
	} else if csvPath := os.Getenv("SUBCOORD_EXPORT_CSV"); csvPath != "" {
		sink, err := export.NewCSVSink(csvPath)
		if err != nil {
			return fmt.Errorf("open csv export sink: %w", err)
		}
		eng.SetExportSink(sink)
		defer sink.Close()
	}

	builder := playlist.NewBuilder(cfg.Source.PlaylistPath)
	srv := control.NewServer(eng, h, builder)

	presenceCtx, stopPresence := context.WithCancel(context.Background())
	go presence.New(builder, h, 5*time.Second).Run(presenceCtx)
	defer stopPresence()

	hotCfg.SetFrozenCheck(func() bool { return eng.Status().FragmentActive })
	hotCfg.OnReload(func(next *config.Config) {
		slog.Info("config reloaded", "port", next.Server.Port)
	})
	hotCfg.Watch()

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: srv,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down...")
		eng.StopFragment()
		eng.StopLive()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(ctx)
	}()

	slog.Info("subcoord listening", "port", cfg.Server.Port)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
