package plugin

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Karniz-UI/NewEraV4Fix/cmd/newera/internal"
	"github.com/Karniz-UI/NewEraV4Fix/pkg/commands/builtin"
	"github.com/Karniz-UI/NewEraV4Fix/pkg/config"
	"github.com/Karniz-UI/NewEraV4Fix/pkg/plugin"
	luart "github.com/Karniz-UI/NewEraV4Fix/pkg/plugin/lua"
)

func newLintSubcommand() *cobra.Command {
	configPath := internal.GetConfigPath()

	cmd := &cobra.Command{
		Use:   "lint <file.lua>",
		Short: "Compile a plugin and show what it registers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return fmt.Errorf("error loading config: %w", err)
			}

			path := args[0]
			if filepath.Ext(path) != luart.Extension {
				return fmt.Errorf("%s: expected a %s file", path, luart.Extension)
			}
			src, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			name := strings.TrimSuffix(filepath.Base(path), luart.Extension)

			rt := luart.NewRuntime(cfg.PluginCallTimeout())
			info, err := plugin.Inspect(cmd.Context(), rt, cfg.Defaults.Prefix, name, src)
			if err != nil {
				return fmt.Errorf("plugin lint: %w", err)
			}
			for _, trigger := range info.Commands {
				if slices.Contains(builtin.Names, strings.ToLower(trigger)) {
					return fmt.Errorf("plugin lint: %q shadows a built-in command", trigger)
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "plugin %s: ok (sha256 %s)\n", info.Name, info.Checksum[:12])
			for _, trigger := range info.Commands {
				fmt.Fprintf(out, "  command %s\n", trigger)
			}
			keys := make([]string, 0, len(info.Manifest))
			for k := range info.Manifest {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(out, "  manifest %s: %s\n", k, info.Manifest[k])
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", internal.GetConfigPath(), "Path to config file")

	return cmd
}
