package main

import (
	"encoding/json"
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/spf13/cobra"

	"github.com/tendant/simple-media/pkg/simplemedia/config"
)

// NewMigrateCommand applies the database migrations
func NewMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long:  `Create or upgrade the sqlite or postgres schema named by DATABASE_URL. The memory backend needs none.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Migrate(); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied")
			return nil
		},
	}
}

// NewReconcileCommand reports records whose blob is missing from the store
func NewReconcileCommand() *cobra.Command {
	var repair bool

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Check file records against stored blobs",
		Long: `List the file records whose blob is missing from the content store.
With --repair the orphaned records, their ids and derivatives are removed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			svc, err := cfg.BuildService(cmd.Context(), nil)
			if err != nil {
				return fmt.Errorf("build service: %w", err)
			}
			defer svc.Close()

			report, err := svc.Reconcile(cmd.Context(), repair)
			if err != nil {
				return fmt.Errorf("reconcile: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}

	cmd.Flags().BoolVar(&repair, "repair", false, "remove orphaned records")

	return cmd
}

// NewEnvCommand prints the environment variables the server reads
func NewEnvCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Describe the environment variables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			header := "Environment variables:"
			text, err := cleanenv.GetDescription(&config.Config{}, &header)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
}

// NewVersionCommand prints build information
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mediastore %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}
