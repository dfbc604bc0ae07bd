package main

import (
	"fmt"

	"github.com/fjod/storefront/internal/config"
	"github.com/fjod/storefront/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	configPath string
	baseURL    string
	verbose    bool

	cfg *config.Config
	log *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "storefront",
		Short: "Storefront shop client and reference backend",
		Long: `storefront talks to the storefront REST backend: browse products, keep a
cart, check out and manage the shop as an admin.

"storefront serve" runs the reference backend itself.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			if a.baseURL != "" {
				cfg.Client.BaseURL = a.baseURL
			}
			if a.verbose {
				cfg.Logging.Level = "debug"
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			a.cfg = cfg

			a.log, err = logger.New(logger.Options{Level: cfg.Logging.Level, Development: cfg.Logging.Development})
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&a.baseURL, "url", "", "backend base URL (overrides config)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		a.serveCmd(),
		a.loginCmd(),
		a.signupCmd(),
		a.logoutCmd(),
		a.productsCmd(),
		a.cartCmd(),
		a.checkoutCmd(),
		a.adminCmd(),
	)
	return root
}
