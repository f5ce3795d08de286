// Command examctl is the operator CLI for the attempt lifecycle: it runs the
// expiry sweep on demand, manages result publication and mints tokens for
// local testing.
package main

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stemsi/exstem-grading/internal/app"
	"github.com/stemsi/exstem-grading/internal/config"
	"github.com/stemsi/exstem-grading/internal/logger"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "examctl",
		Short:         "Operate exam attempts and results",
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.String("store", "", "Store driver (postgres, memory); defaults to STORE_DRIVER")
	pf.String("database-url", "", "PostgreSQL URL; defaults to DATABASE_URL")
	pf.String("redis-url", "", "Redis URL; defaults to REDIS_URL")
	pf.StringP("output", "o", "auto", "Output format (auto, table, json)")
	pf.String("log-level", "", "Log level; defaults to LOG_LEVEL")
	pf.Duration("timeout", 2*time.Minute, "Overall command timeout")

	root.AddCommand(
		sweepCmd(),
		forceSubmitCmd(),
		publishCmd(true),
		publishCmd(false),
		resultsCmd(),
		examCmd(),
		drainCmd(),
		tokenCmd(),
	)
	return root
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())
	_ = v.BindPFlags(cmd.InheritedFlags())

	v.SetEnvPrefix("EXAMCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// loadConfig starts from the server configuration and applies CLI overrides.
func loadConfig(v *viper.Viper) *config.Config {
	cfg := config.Load()
	if s := v.GetString("store"); s != "" {
		cfg.StoreDriver = s
	}
	if s := v.GetString("database-url"); s != "" {
		cfg.DatabaseURL = s
	}
	if s := v.GetString("redis-url"); s != "" {
		cfg.RedisURL = s
	}
	if s := v.GetString("log-level"); s != "" {
		cfg.LogLevel = s
	}
	return cfg
}

// session is the per-invocation environment shared by subcommands.
type session struct {
	v   *viper.Viper
	cfg *config.Config
	log zerolog.Logger
	out *printer
}

func newSession(cmd *cobra.Command) *session {
	v := viperForCmd(cmd)
	cfg := loadConfig(v)
	// Logs go to stderr so stdout stays machine readable.
	log := logger.SetupWriter(os.Stderr, cfg.LogLevel, "pretty")
	return &session{
		v:   v,
		cfg: cfg,
		log: log,
		out: newPrinter(cmd.OutOrStdout(), v.GetString("output")),
	}
}

// withApp connects to the stores for the duration of fn.
func (s *session) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), s.v.GetDuration("timeout"))
	defer cancel()

	a, err := app.New(ctx, s.cfg, s.log)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}
