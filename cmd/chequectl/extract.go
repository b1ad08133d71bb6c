package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/cheque-extractor/internal/common"
	"github.com/joseph-ayodele/cheque-extractor/internal/export"
	"github.com/joseph-ayodele/cheque-extractor/internal/ingest"
	"github.com/joseph-ayodele/cheque-extractor/internal/render"
	"github.com/joseph-ayodele/cheque-extractor/internal/session"
)

type outputOptions struct {
	dir    string
	report bool
}

func (o outputOptions) validate() error {
	if o.report && o.dir == "" {
		return common.NewAppError("USAGE_ERROR", "--report requires --out", common.ErrInvalidInput)
	}
	return nil
}

func newExtractCmd(a *app) *cobra.Command {
	var (
		performOCR bool
		out        outputOptions
	)
	cmd := &cobra.Command{
		Use:   "extract FILE",
		Short: "Upload a cheque image and wait for the extraction result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := out.validate(); err != nil {
				return err
			}
			ctx := cmd.Context()
			up, err := ingest.FromPath(args[0], performOCR, a.logger)
			if err != nil {
				return err
			}
			return a.run(ctx, cmd.OutOrStdout(), out, func(s *session.Session) error {
				if err := s.Submit(ctx, up); err != nil {
					if errors.Is(err, common.ErrValidation) {
						// the notice is the whole message
						return errors.New(s.Snapshot().Notice)
					}
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&performOCR, "ocr", false, "perform OCR on the account number")
	addOutputFlags(cmd, &out)
	return cmd
}

func newResumeCmd(a *app) *cobra.Command {
	var out outputOptions
	cmd := &cobra.Command{
		Use:   "resume TASK_ID",
		Short: "Poll an already submitted task until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := out.validate(); err != nil {
				return err
			}
			return a.run(cmd.Context(), cmd.OutOrStdout(), out, func(s *session.Session) error {
				return s.Resume(args[0])
			})
		},
	}
	addOutputFlags(cmd, &out)
	return cmd
}

func addOutputFlags(cmd *cobra.Command, out *outputOptions) {
	cmd.Flags().StringVar(&out.dir, "out", "", "write the labeled and cropped images into this directory")
	cmd.Flags().BoolVar(&out.report, "report", false, "also write detections.xlsx (requires --out)")
}

// run drives one session from start to a terminal view and prints the outcome.
func (a *app) run(ctx context.Context, w io.Writer, out outputOptions, start func(*session.Session) error) error {
	repo, closeHistory, err := a.history(ctx)
	if err != nil {
		return err
	}
	defer closeHistory()

	opts := []session.Option{}
	if repo != nil {
		opts = append(opts, session.WithRecorder(repo))
	}
	sess := session.New(a.client(), a.logger, session.Config{
		PollInterval: a.cfg.Poll.Interval,
		NoticeTTL:    a.cfg.UI.NoticeTTL,
	}, opts...)
	defer sess.Close()

	if err := start(sess); err != nil {
		return err
	}
	if snap := sess.Snapshot(); snap.View == session.ViewProcessing {
		name := snap.Filename
		if name == "" {
			name = "task"
		}
		fmt.Fprintf(w, "Processing %s (task %s)...\n", name, snap.TaskID)
	}

	snap, err := sess.Wait(ctx)
	if err != nil {
		return err
	}
	return a.present(ctx, w, snap, out)
}

func (a *app) present(ctx context.Context, w io.Writer, snap session.Snapshot, out outputOptions) error {
	switch snap.View {
	case session.ViewResults:
		render.WriteResultsTable(w, render.BuildResults(snap.Result))
		if out.dir == "" {
			return nil
		}
		return a.save(ctx, w, snap, out)

	case session.ViewError:
		title, detail := "", ""
		if snap.Failure != nil {
			title, detail = snap.Failure.Title, snap.Failure.Detail
		}
		fmt.Fprintln(w, session.SupportMessage(a.cfg.UI.SupportEmail, snap.TaskID))
		if detail == "" {
			return errors.New(title)
		}
		return fmt.Errorf("%s: %s", title, detail)

	default:
		return fmt.Errorf("unexpected view %s: %w", snap.View, common.ErrInvalidState)
	}
}

func (a *app) save(ctx context.Context, w io.Writer, snap session.Snapshot, out outputOptions) error {
	exp := export.NewExporter(export.DirSink{Dir: out.dir}, a.cfg.Export.Stagger, a.logger)

	n, err := exp.DownloadAll(ctx, snap.Result)
	switch {
	case errors.Is(err, export.ErrNoImages):
		fmt.Fprintln(w, export.MsgNoImages)
	case err != nil:
		return err
	default:
		fmt.Fprintf(w, "Saved %d image(s) to %s\n", n, out.dir)
	}

	if out.report {
		if err := exp.DownloadReport(ctx, snap.TaskID, snap.Result); err != nil {
			return err
		}
		a.logger.Info("chequectl.report.saved", slog.String("dir", out.dir))
	}
	return nil
}
