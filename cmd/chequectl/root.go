package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joseph-ayodele/cheque-extractor/internal/common"
	"github.com/joseph-ayodele/cheque-extractor/internal/extractapi"
	"github.com/joseph-ayodele/cheque-extractor/internal/repository"
	"github.com/joseph-ayodele/cheque-extractor/internal/server"
)

// app carries what every subcommand needs once configuration is loaded.
type app struct {
	configFile string
	v          *viper.Viper
	cfg        *common.Config
	logger     *slog.Logger
}

// flag name -> config key
var boundFlags = map[string]string{
	"api-url":       "api.base_url",
	"api-key":       "api.key",
	"poll-interval": "poll.interval",
	"history-dsn":   "history.dsn",
	"log-level":     "log.level",
	"log-format":    "log.format",
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "chequectl",
		Short:         "Extract account numbers and signatures from cheque images",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "config file (default ./cheque.yaml)")
	pf.String("api-url", "", "extraction API base URL")
	pf.String("api-key", "", "extraction API key")
	pf.Duration("poll-interval", 0, "task status polling interval")
	pf.String("history-dsn", "", "task history store (sqlite path, postgres:// or mysql://)")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("log-format", "", "log format: text or json")

	root.AddCommand(
		newExtractCmd(a),
		newResumeCmd(a),
		newHistoryCmd(a),
		newHealthCmd(a),
	)
	return root
}

func (a *app) load(cmd *cobra.Command) error {
	v, err := common.NewViper(a.configFile)
	if err != nil {
		return err
	}
	for name, key := range boundFlags {
		if err := v.BindPFlag(key, cmd.Root().PersistentFlags().Lookup(name)); err != nil {
			return err
		}
	}
	cfg, err := common.LoadConfig(v)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	a.v = v
	a.cfg = cfg
	a.logger = common.NewLogger(os.Stderr, cfg.Log)
	slog.SetDefault(a.logger)
	a.logger.Debug("chequectl.config", "config", cfg.String())
	return nil
}

func (a *app) client() *extractapi.Client {
	return extractapi.NewClient(extractapi.Config{
		BaseURL: a.cfg.API.BaseURL,
		APIKey:  a.cfg.API.Key,
		Timeout: a.cfg.API.Timeout,
	}, a.logger)
}

// history opens the journal; both results are nil when it is disabled.
func (a *app) history(ctx context.Context) (repository.TaskRepository, func(), error) {
	repo, db, err := server.ConnectHistory(ctx, a.cfg.History, a.logger)
	if err != nil {
		return nil, func() {}, err
	}
	return repo, func() { server.CloseHistory(db, a.logger) }, nil
}
