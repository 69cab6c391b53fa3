package plugin

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Karniz-UI/NewEraV4Fix/cmd/newera/internal"
	"github.com/Karniz-UI/NewEraV4Fix/pkg/config"
	luart "github.com/Karniz-UI/NewEraV4Fix/pkg/plugin/lua"
	"github.com/Karniz-UI/NewEraV4Fix/pkg/store"
)

const (
	formatText = "text"
	formatJSON = "json"
)

type pluginStatus struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	Checksum string `json:"checksum,omitempty"`
}

func newListCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored plugins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != formatText && format != formatJSON {
				return fmt.Errorf("invalid value for --format: %q (allowed: %s, %s)", format, formatText, formatJSON)
			}

			cfg, err := internal.LoadConfig()
			if err != nil {
				return fmt.Errorf("error loading config: %w", err)
			}
			statuses, err := collectStatuses(cmd, cfg)
			if err != nil {
				return err
			}
			return renderPluginStatuses(cmd.OutOrStdout(), format, statuses)
		},
	}

	cmd.Flags().StringVar(&format, "format", formatText, "Output format (text|json)")

	return cmd
}

// collectStatuses merges the store records with the artifacts on disk.
// "loaded" plugins autoload on the next run, "untracked" ones autoload
// after the recorded ones and "missing" records have lost their file.
func collectStatuses(cmd *cobra.Command, cfg *config.Config) ([]pluginStatus, error) {
	st, err := store.Open(cfg.DBPath())
	if err != nil {
		return nil, err
	}
	defer st.Close()

	records, err := st.Plugins(cmd.Context())
	if err != nil {
		return nil, err
	}

	onDisk := map[string]bool{}
	entries, err := os.ReadDir(cfg.PluginsPath())
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == luart.Extension {
			onDisk[strings.TrimSuffix(e.Name(), luart.Extension)] = true
		}
	}

	statuses := make([]pluginStatus, 0, len(records)+len(onDisk))
	for _, rec := range records {
		status := "loaded"
		if !onDisk[rec.Name] {
			status = "missing"
		}
		delete(onDisk, rec.Name)
		statuses = append(statuses, pluginStatus{Name: rec.Name, Status: status, Checksum: rec.Checksum})
	}
	var untracked []string
	for name := range onDisk {
		untracked = append(untracked, name)
	}
	sort.Strings(untracked)
	for _, name := range untracked {
		statuses = append(statuses, pluginStatus{Name: name, Status: "untracked"})
	}
	return statuses, nil
}

func renderPluginStatuses(w io.Writer, format string, statuses []pluginStatus) error {
	switch format {
	case formatText:
		if _, err := fmt.Fprintln(w, "NAME\tSTATUS\tCHECKSUM"); err != nil {
			return err
		}
		for _, status := range statuses {
			sum := status.Checksum
			if len(sum) > 12 {
				sum = sum[:12]
			}
			if _, err := fmt.Fprintf(w, "%s\t%s\t%s\n", status.Name, status.Status, sum); err != nil {
				return err
			}
		}
		return nil
	case formatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(statuses)
	default:
		return fmt.Errorf("invalid value for --format: %q (allowed: %s, %s)", format, formatText, formatJSON)
	}
}
