package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/cheque-extractor/internal/render"
)

func newHistoryCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recently submitted tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, closeHistory, err := a.history(cmd.Context())
			if err != nil {
				return err
			}
			defer closeHistory()
			if repo == nil {
				return errors.New("task history is disabled, set history.dsn or --history-dsn")
			}

			recs, err := repo.ListRecent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			render.WriteHistoryTable(cmd.OutOrStdout(), recs, time.Now())
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of tasks to list")
	return cmd
}

func newHealthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the extraction API is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.client().Health(cmd.Context()); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "extraction API is healthy at "+a.cfg.API.BaseURL)
			return err
		},
	}
}
