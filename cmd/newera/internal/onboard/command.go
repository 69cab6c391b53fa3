package onboard

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Karniz-UI/NewEraV4Fix/cmd/newera/internal"
	"github.com/Karniz-UI/NewEraV4Fix/pkg/config"
	"github.com/Karniz-UI/NewEraV4Fix/pkg/store"
)

func NewOnboardCommand() *cobra.Command {
	var console bool

	cmd := &cobra.Command{
		Use:     "onboard",
		Aliases: []string{"o"},
		Short:   "Configure the bot session",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := internal.LoadConfig()
			if err != nil {
				return fmt.Errorf("error loading config: %w", err)
			}
			transport := cfg.Transport
			if console {
				transport = config.TransportConsole
			}

			st, err := store.Open(cfg.DBPath())
			if err != nil {
				return err
			}
			defer st.Close()

			fmt.Fprintln(cmd.OutOrStdout(), internal.Banner())
			sess, err := Run(cmd.Context(), st, cfg, transport, Terminal{})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s session saved (prefix %q, language %s)\n",
				sess.Transport, sess.Prefix, sess.Language)
			return nil
		},
	}

	cmd.Flags().BoolVar(&console, "console", false, "Configure the console transport")

	return cmd
}
