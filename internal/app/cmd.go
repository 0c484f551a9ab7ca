package app

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/hitoshi/barberadmin/internal/config"
)

// NewRootCommand はbarberadminのコマンドツリーを生成する。
// サブコマンドを指定しない場合はserveとして動作する。
func NewRootCommand(w io.Writer) *cobra.Command {
	serve := newServeCommand(w)

	root := &cobra.Command{
		Use:           "barberadmin",
		Short:         "Barbershop admin API server",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          serve.RunE,
	}

	root.AddCommand(serve)
	root.AddCommand(newWorkerCommand(w))
	root.AddCommand(newMigrateCommand(w))
	root.AddCommand(newHealthcheckCommand())
	root.AddCommand(newUserCommand(w))

	return root
}

// initWith はInitを実行し、起動ログを出す。
func initWith(w io.Writer, command string) (*config.Config, error) {
	cfg, err := Init(w)
	if err != nil {
		return nil, err
	}

	slog.Info("starting application",
		slog.String("command", command),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)
	return cfg, nil
}

func newServeCommand(w io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := initWith(w, "serve")
			if err != nil {
				return err
			}
			return runServe(cfg)
		},
	}
}

func newWorkerCommand(w io.Writer) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run background jobs (expired session cleanup)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := initWith(w, "worker")
			if err != nil {
				return err
			}
			return runWorker(cfg, metricsAddr)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve /metrics on (disabled when empty)")

	return cmd
}

func newMigrateCommand(w io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := initWith(w, "migrate")
			if err != nil {
				return err
			}
			return runMigrate(cfg)
		},
	}
}

// newHealthcheckCommand は軽量サブコマンドのため、フル初期化をスキップする。
func newHealthcheckCommand() *cobra.Command {
	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}

	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Probe the local /health endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealthcheck(port)
		},
	}
	cmd.Flags().StringVar(&port, "port", port, "port of the local API server")

	return cmd
}

func newUserCommand(w io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage sign-in accounts",
	}

	var email, password, name string
	add := &cobra.Command{
		Use:   "add",
		Short: "Register a user that signs in with email and password",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := initWith(w, "user add")
			if err != nil {
				return err
			}
			return runUserAdd(cfg, c.OutOrStdout(), email, password, name)
		},
	}
	add.Flags().StringVar(&email, "email", "", "email address (required)")
	add.Flags().StringVar(&password, "password", "", "password, at least 8 characters (required)")
	add.Flags().StringVar(&name, "name", "", "display name")
	add.MarkFlagRequired("email")
	add.MarkFlagRequired("password")

	cmd.AddCommand(add)
	return cmd
}
