package cli

import (
	"encoding/json"
	"fmt"

	"github.com/soyeahso/wadesk/internal/botconfig"
	"github.com/soyeahso/wadesk/internal/config"
	"github.com/spf13/cobra"
)

func newBotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bot",
		Short: "Inspect or reset the saved auto-responder config",
	}

	cmd.AddCommand(newBotShowCmd())
	cmd.AddCommand(newBotResetCmd())
	return cmd
}

// botStore opens the bot config store named by the runtime config.
func botStore() (*botconfig.Store, string, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return nil, "", err
	}
	paths.FillLocations(&cfg)
	return botconfig.NewStore(botconfig.NewFilePersistence(cfg.Bot.ConfigFile), log), cfg.Bot.ConfigFile, nil
}

func newBotShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the saved bot config as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bots, _, err := botStore()
			if err != nil {
				return err
			}
			if err := bots.Load(); err != nil {
				return err
			}

			data, err := json.MarshalIndent(bots.Get(), "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func newBotResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Replace the saved bot config with the defaults",
		Long:  "Replace the saved bot config with the defaults. A running server keeps its in-memory config until restarted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bots, path, err := botStore()
			if err != nil {
				return err
			}
			if _, err := bots.Reset(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Bot config reset (%s)\n", path)
			return nil
		},
	}
}
