package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"
	"lingopaste/svc/db"
)

// healthCmd is meant for container health checks: silent, exit code only.
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Exit 0 if the database is reachable",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		dbPath := os.Getenv("DATABASE_PATH")
		if dbPath == "" {
			dbPath = "lingopaste.db"
		}
		sqlDB, err := db.NewSQLite(dbPath)
		if err != nil {
			os.Exit(1)
		}
		defer sqlDB.Close()
		pingCtx, pingCancel := context.WithTimeout(ctx, time.Second)
		defer pingCancel()
		if err := sqlDB.Ping(pingCtx); err != nil {
			os.Exit(1)
		}
	},
}
