package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aditya-Ranjan1234/AgroVision/internal/collab"
	"github.com/Aditya-Ranjan1234/AgroVision/internal/db"
	"github.com/Aditya-Ranjan1234/AgroVision/internal/logger"
	"github.com/Aditya-Ranjan1234/AgroVision/internal/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the saved location, alert log, weather and advice as MCP tools on stdio",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, closer, err := setup(true)
		if err != nil {
			return err
		}
		defer closer.Close()

		store, err := db.Open(cfg.Storage.DBPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer store.Close()

		client := collab.New(collab.Config{
			BaseURL:         cfg.Server.BaseURL,
			Language:        cfg.Server.Language,
			Timeout:         cfg.Server.HTTPTimeout,
			WeatherCacheTTL: cfg.Storage.WeatherCacheTTL,
		}, logger.WithComponent("collab"))

		srv := mcpserver.New(store, client, version, logger.WithComponent("mcp"))
		return srv.Serve(cmd.Context(), os.Stdin, os.Stdout)
	},
}
