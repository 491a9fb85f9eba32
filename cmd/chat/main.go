package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bz888/llamagate/internal/config"
	"github.com/bz888/llamagate/internal/logger"
	"github.com/bz888/llamagate/internal/ui"
)

var (
	cfgFile    string
	gatewayURL string
	apiKey     string
	model      string
	logPath    string
	dev        bool
)

var rootCmd = &cobra.Command{
	Use:   "llamagate-chat",
	Short: "Terminal chat client for the llamagate gateway",
	Long: `Chat against models served through a llamagate gateway, with a paced
word-by-word reveal of streaming responses.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadClient(cfgFile)
		if err != nil {
			return err
		}

		if cmd.Flags().Changed("gateway") {
			cfg.GatewayURL = gatewayURL
		}
		if cmd.Flags().Changed("api-key") {
			cfg.APIKey = apiKey
		}
		if cmd.Flags().Changed("model") {
			cfg.Model = model
		}
		if cmd.Flags().Changed("log-path") {
			cfg.LogPath = logPath
		}
		if cmd.Flags().Changed("dev") {
			cfg.Dev = dev
		}

		ui.Init()
		debugConsole, err := ui.GetDebugConsole()
		if err != nil {
			return err
		}
		logger.InitLogger(cfg.Dev, cfg.LogPath, debugConsole)

		return ui.Run(cfg)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.llamagate.yaml)")
	rootCmd.Flags().StringVar(&gatewayURL, "gateway", "", "gateway base URL")
	rootCmd.Flags().StringVar(&apiKey, "api-key", "", "project API key")
	rootCmd.Flags().StringVar(&model, "model", "", "model to chat with")
	rootCmd.Flags().StringVar(&logPath, "log-path", "", "directory to write log files to")
	rootCmd.Flags().BoolVar(&dev, "dev", false, "development mode (debug console)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
