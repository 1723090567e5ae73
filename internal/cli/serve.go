package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/iurnickita/gascontrol/internal/auth"
	"github.com/iurnickita/gascontrol/internal/config"
	"github.com/iurnickita/gascontrol/internal/handler"
	"github.com/iurnickita/gascontrol/internal/logger"
	"github.com/iurnickita/gascontrol/internal/service"
	"github.com/iurnickita/gascontrol/internal/store"
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("address", "a", "", "Address to listen on (overrides RUN_ADDRESS)")
	serveCmd.Flags().StringP("database", "d", "", "Database DSN (overrides DATABASE_URI)")
	serveCmd.Flags().String("driver", "", "Store driver: memory, postgres or sqlite")
	serveCmd.Flags().StringP("log-level", "l", "", "Log level")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		applyServeFlags(cmd, &cfg)
		return run(cfg)
	},
}

func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("address") {
		cfg.Handler.ServerAddr, _ = cmd.Flags().GetString("address")
	}
	if cmd.Flags().Changed("database") {
		cfg.Store.DBDsn, _ = cmd.Flags().GetString("database")
	}
	if cmd.Flags().Changed("driver") {
		cfg.Store.Driver, _ = cmd.Flags().GetString("driver")
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Logger.LogLevel, _ = cmd.Flags().GetString("log-level")
	}
}

func run(cfg config.Config) error {
	if cfg.Auth.Secret == "" {
		return errors.New("auth secret is not set (AUTH_SECRET or [auth] secret)")
	}

	zaplog, err := logger.NewZapLog(cfg.Logger)
	if err != nil {
		return err
	}
	defer zaplog.Sync()

	store, err := store.NewStore(cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	service, err := service.NewService(cfg.Service, store, zaplog)
	if err != nil {
		return err
	}
	auth := auth.NewAuth(cfg.Auth, zaplog)

	return handler.Serve(cfg.Handler, auth, service, zaplog)
}
