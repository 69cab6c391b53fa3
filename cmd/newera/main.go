package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Karniz-UI/NewEraV4Fix/cmd/newera/internal"
	"github.com/Karniz-UI/NewEraV4Fix/cmd/newera/internal/backup"
	"github.com/Karniz-UI/NewEraV4Fix/cmd/newera/internal/onboard"
	"github.com/Karniz-UI/NewEraV4Fix/cmd/newera/internal/plugin"
	"github.com/Karniz-UI/NewEraV4Fix/cmd/newera/internal/run"
	"github.com/Karniz-UI/NewEraV4Fix/cmd/newera/internal/version"
)

func NewNewEraCommand() *cobra.Command {
	short := fmt.Sprintf("%s newera - Telegram self-bot core with Lua modules\n\n", internal.Logo)

	cmd := &cobra.Command{
		Use:           "newera",
		Short:         short,
		Example:       "newera run\nnewera run --console",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(
		run.NewRunCommand(),
		onboard.NewOnboardCommand(),
		plugin.NewPluginCommand(),
		backup.NewBackupCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	cmd := NewNewEraCommand()
	if len(os.Args) == 1 {
		cmd.SetArgs([]string{"run"})
	}
	if err := cmd.Execute(); err != nil {
		var exit *internal.ExitError
		if errors.As(err, &exit) {
			if exit.Err != nil {
				fmt.Fprintln(os.Stderr, "Error:", exit.Err)
			}
			os.Exit(exit.Code)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
