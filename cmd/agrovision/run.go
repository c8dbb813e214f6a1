package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aditya-Ranjan1234/AgroVision/internal/alerts"
	"github.com/Aditya-Ranjan1234/AgroVision/internal/app"
	"github.com/Aditya-Ranjan1234/AgroVision/internal/audio"
	"github.com/Aditya-Ranjan1234/AgroVision/internal/channel"
	"github.com/Aditya-Ranjan1234/AgroVision/internal/collab"
	"github.com/Aditya-Ranjan1234/AgroVision/internal/db"
	"github.com/Aditya-Ranjan1234/AgroVision/internal/logger"
	"github.com/Aditya-Ranjan1234/AgroVision/internal/metrics"
	"github.com/Aditya-Ranjan1234/AgroVision/internal/state"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Open the dashboard (default)",
	RunE:  runDashboard,
}

func runDashboard(cmd *cobra.Command, _ []string) error {
	cfg, closer, err := setup(false)
	if err != nil {
		return err
	}
	defer closer.Close()
	log := logger.WithComponent("main")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shared := state.New()
	defer shared.Close()

	m := metrics.New()
	shared.Subscribe(func(s state.Snapshot) {
		m.SetCameras(len(s.Cameras))
		if s.Connection.Status != "" {
			m.SetConnectionState(s.Connection.Status)
		}
	})

	// The dashboard still works without a database, it just forgets the
	// location between runs.
	store, err := db.Open(cfg.Storage.DBPath)
	if err != nil {
		log.Warn().Err(err).Str("path", cfg.Storage.DBPath).Msg("running without local storage")
		store = nil
	} else {
		defer store.Close()
	}

	streamMode, err := collab.ParseStreamMode(cfg.Chat.StreamMode)
	if err != nil {
		return err
	}
	client := collab.New(collab.Config{
		BaseURL:         cfg.Server.BaseURL,
		Language:        cfg.Server.Language,
		Timeout:         cfg.Server.HTTPTimeout,
		WeatherCacheTTL: cfg.Storage.WeatherCacheTTL,
		StreamMode:      streamMode,
	}, logger.WithComponent("collab"))

	url, err := channel.ChannelURL(cfg.Server.BaseURL, cfg.Channel.Path)
	if err != nil {
		return err
	}
	mgr := channel.NewManager(channel.Config{
		URL:            url,
		MaxAttempts:    cfg.Channel.MaxAttempts,
		InitialDelay:   cfg.Channel.InitialDelay,
		MaxDelay:       cfg.Channel.MaxDelay,
		ConnectTimeout: cfg.Channel.ConnectTimeout,
	}, nil, logger.WithComponent("channel"))
	defer mgr.Close()

	model := app.New(ctx, app.Deps{
		Config:   cfg,
		State:    shared,
		Store:    store,
		Channel:  mgr,
		Client:   client,
		Notifier: alerts.NewDesktopNotifier(os.Stderr),
		Player:   audio.NewPlayer(cfg.Audio.Player),
		Mic:      audio.NewMicrophone(),
		Metrics:  m,
		Log:      logger.WithComponent("app"),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer stop()
		p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(gctx))
		if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			return fmt.Errorf("dashboard: %w", err)
		}
		return nil
	})
	if cfg.Metrics.Addr != "" {
		exporter := metrics.NewExporter(cfg.Metrics.Addr, m)
		g.Go(func() error {
			return exporter.Run(gctx)
		})
		log.Info().Str("addr", cfg.Metrics.Addr).Msg("metrics exporter enabled")
	}

	log.Info().Str("server", cfg.Server.BaseURL).Str("version", version).Msg("dashboard starting")
	err = g.Wait()
	log.Info().Err(err).Msg("dashboard stopped")
	return err
}
