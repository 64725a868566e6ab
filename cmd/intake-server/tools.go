package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/swasthyaflow/intake/internal/domain/routing"
	"github.com/swasthyaflow/intake/internal/domain/triage"
	"github.com/swasthyaflow/intake/internal/platform/db"
	"github.com/swasthyaflow/intake/migrations"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect the clinical override rule table",
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Parse a rule table and list its rules in evaluation order",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")
			rules, err := triage.LoadRules(path)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			source := path
			if source == "" {
				source = "embedded default"
			}
			fmt.Fprintf(out, "Rule table %s: %d rule(s) OK\n", source, len(rules))
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "#\tID\tRISK\tDEPARTMENT\tSYMPTOMS")
			for i, r := range rules {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", i+1, r.ID, r.Risk, r.Department, strings.Join(r.Symptoms, ","))
			}
			return w.Flush()
		},
	}
	validateCmd.Flags().String("file", "", "Rule table YAML file (empty for the embedded table)")
	cmd.AddCommand(validateCmd)
	return cmd
}

// migrationFiles returns the embedded migrations unless dir overrides them.
func migrationFiles(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			migrator, closeFn, err := openMigrator(ctx, dir)
			if err != nil {
				return err
			}
			defer closeFn()

			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (empty for the embedded set)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			migrator, closeFn, err := openMigrator(ctx, dir)
			if err != nil {
				return err
			}
			defer closeFn()

			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Fprintln(out, "---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (empty for the embedded set)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func openMigrator(ctx context.Context, dir string) (*db.Migrator, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, nil, fmt.Errorf("DATABASE_URL is required")
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns, zerolog.Nop())
	if err != nil {
		return nil, nil, err
	}
	return db.NewMigrator(pool, migrationFiles(dir)), pool.Close, nil
}

func facilitiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "facilities",
		Short: "Manage the facility directory",
	}

	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Upsert facilities from a YAML file into the database directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")
			facilities, err := routing.LoadFacilities(path)
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required")
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns, zerolog.Nop())
			if err != nil {
				return err
			}
			defer pool.Close()

			n, err := routing.NewDirectoryPG(pool).Import(ctx, facilities)
			if err != nil {
				return fmt.Errorf("import facilities: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d facilit(ies).\n", n)
			return nil
		},
	}
	importCmd.Flags().String("file", "", "Facility YAML file (empty for the embedded directory)")
	cmd.AddCommand(importCmd)
	return cmd
}

func routeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "route",
		Short: "Rank facilities for a location and department against simulated load",
		RunE: func(cmd *cobra.Command, args []string) error {
			lat, _ := cmd.Flags().GetFloat64("lat")
			lon, _ := cmd.Flags().GetFloat64("lon")
			dept, _ := cmd.Flags().GetString("department")
			maxDist, _ := cmd.Flags().GetFloat64("max-distance")
			maxResults, _ := cmd.Flags().GetInt("max-results")
			path, _ := cmd.Flags().GetString("facilities")
			seed, _ := cmd.Flags().GetInt64("seed")

			facilities, err := routing.LoadFacilities(path)
			if err != nil {
				return err
			}
			loads := routing.NewMemoryLoadStore(routing.Simulator{Seed: seed, Thresholds: routing.DefaultThresholds()})
			svc := routing.NewService(routing.NewFileDirectory(facilities), loads,
				routing.NewRouter(loads, routing.RankOptions{}), routing.DefaultThresholds(), zerolog.Nop())

			candidates, err := svc.Suggest(cmd.Context(), routing.SuggestRequest{
				Location:      routing.GeoPoint{Latitude: lat, Longitude: lon},
				Department:    dept,
				MaxDistanceKm: maxDist,
				MaxResults:    maxResults,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(candidates) == 0 {
				fmt.Fprintln(out, "No facility within range.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RANK\tID\tNAME\tKM\tLOAD%\tWAIT\tSTATUS\tSCORE")
			for i, c := range candidates {
				fmt.Fprintf(w, "%d\t%s\t%s\t%.1f\t%.1f\t%d\t%s\t%.3f\n",
					i+1, c.FacilityID, c.Name, c.DistanceKm, c.LoadPercentage, c.EstimatedWaitMinutes, c.Status, c.Score)
			}
			return w.Flush()
		},
	}
	cmd.Flags().Float64("lat", 0, "Patient latitude")
	cmd.Flags().Float64("lon", 0, "Patient longitude")
	cmd.Flags().String("department", "Emergency", "Required department")
	cmd.Flags().Float64("max-distance", routing.DefaultMaxDistanceKm, "Search radius in km")
	cmd.Flags().Int("max-results", routing.DefaultMaxResults, "Maximum candidates")
	cmd.Flags().String("facilities", "", "Facility YAML file (empty for the embedded directory)")
	cmd.Flags().Int64("seed", 42, "Load simulation seed")
	return cmd
}
