package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Karniz-UI/NewEraV4Fix/cmd/newera/internal"
	"github.com/Karniz-UI/NewEraV4Fix/pkg/backup"
	"github.com/Karniz-UI/NewEraV4Fix/pkg/config"
	"github.com/Karniz-UI/NewEraV4Fix/pkg/store"
)

func NewBackupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Create, list and restore backups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(
		newCreateCommand(),
		newListCommand(),
		newCleanCommand(),
		newRestoreCommand(),
	)

	return cmd
}

func newCreateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Archive plugins, session database and config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := internal.LoadConfig()
			if err != nil {
				return fmt.Errorf("error loading config: %w", err)
			}
			name, err := create(cmd.Context(), cfg, internal.GetConfigPath())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), filepath.Join(cfg.BackupsPath(), name))
			return nil
		},
	}
}

// create mirrors the running bot's backup command for offline use.
func create(ctx context.Context, cfg *config.Config, configPath string) (string, error) {
	st, err := store.Open(cfg.DBPath())
	if err != nil {
		return "", err
	}
	defer st.Close()

	if err := os.MkdirAll(cfg.TempPath(), 0o700); err != nil {
		return "", err
	}
	work, err := os.MkdirTemp(cfg.TempPath(), "snapshot-")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(work)

	snapshot := filepath.Join(work, filepath.Base(cfg.DBPath()))
	if err := st.Snapshot(ctx, snapshot); err != nil {
		return "", err
	}

	name, err := backup.Create(ctx, cfg.BackupsPath(), []backup.Source{
		{Path: cfg.PluginsPath(), Name: "plugins"},
		{Path: snapshot, Name: filepath.Base(cfg.DBPath())},
		{Path: configPath, Name: filepath.Base(configPath)},
	}, time.Now())
	if err != nil {
		return "", err
	}
	if _, err := backup.Prune(cfg.BackupsPath(), cfg.Backup.Keep); err != nil {
		return name, fmt.Errorf("prune backups: %w", err)
	}
	return name, nil
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List backup archives, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := internal.LoadConfig()
			if err != nil {
				return fmt.Errorf("error loading config: %w", err)
			}
			names, err := backup.List(cfg.BackupsPath())
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func newCleanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove downloaded temp files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := internal.LoadConfig()
			if err != nil {
				return fmt.Errorf("error loading config: %w", err)
			}
			n, err := backup.CleanDir(cfg.TempPath())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d temp files\n", n)
			return nil
		},
	}
}

func newRestoreCommand() *cobra.Command {
	var target string

	cmd := &cobra.Command{
		Use:   "restore <archive>",
		Short: "Extract a backup into the data directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := internal.LoadConfig()
			if err != nil {
				return fmt.Errorf("error loading config: %w", err)
			}
			dir := target
			if dir == "" {
				dir = cfg.DataPath()
			}
			archive := args[0]
			if filepath.Dir(archive) == "." {
				if _, err := os.Stat(archive); os.IsNotExist(err) {
					archive = filepath.Join(cfg.BackupsPath(), archive)
				}
			}
			n, err := backup.Restore(archive, dir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %d files into %s\n", n, dir)
			return nil
		},
	}

	cmd.Flags().StringVar(&target, "target", "", "Directory to restore into (default: data dir)")

	return cmd
}
