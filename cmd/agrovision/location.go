package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aditya-Ranjan1234/AgroVision/internal/db"
)

var locationCmd = &cobra.Command{
	Use:   "location",
	Short: "Show or clear the saved farm location",
}

var locationShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the saved location",
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		loc, err := store.Location()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if loc == nil {
			fmt.Fprintln(out, "No location saved.")
			return nil
		}
		fmt.Fprintf(out, "%.4f, %.4f", loc.Lat, loc.Lon)
		if loc.Name != "" {
			fmt.Fprintf(out, " (%s)", loc.Name)
		}
		fmt.Fprintf(out, "\nupdated %s\n", loc.UpdatedAt.Local().Format("2006-01-02 15:04"))
		return nil
	},
}

var locationClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget the saved location so the dashboard asks again",
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.ClearLocation(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Location cleared.")
		return nil
	},
}

func init() {
	locationCmd.AddCommand(locationShowCmd, locationClearCmd)
}

func openStore() (*db.Store, error) {
	cfg, closer, err := setup(false)
	if err != nil {
		return nil, err
	}
	closer.Close()
	return db.Open(cfg.Storage.DBPath)
}
