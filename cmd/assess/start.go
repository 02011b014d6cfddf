package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ashureev/talent-manual/internal/assessment"
	"github.com/ashureev/talent-manual/internal/conversation"
	"github.com/ashureev/talent-manual/internal/domain"
	"github.com/ashureev/talent-manual/internal/store"
	"github.com/spf13/cobra"
)

const quitCommand = "/quit"

func newStartCmd(opts *options) *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start an assessment (modes: normal, quick, test_report)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := domain.ParseMode(mode)
			if err != nil {
				return err
			}

			logger := opts.logger()
			client, err := opts.client(logger)
			if err != nil {
				return err
			}

			ctrlOpts := []conversation.Option{
				conversation.WithTimeout(opts.timeout),
				conversation.WithLogger(logger),
				conversation.WithOwner(cliClientID, "terminal"),
			}
			if opts.dbPath != "" {
				repo, err := store.NewSQLite(opts.dbPath)
				if err != nil {
					return err
				}
				defer closeLogged(logger, "repository", repo)
				ctrlOpts = append(ctrlOpts, conversation.WithArchive(repo))
			}

			ctx, stop := signalContext(cmd)
			defer stop()

			ctrl := conversation.New(client, ctrlOpts...)
			return runAssessment(ctx, ctrl, m, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&mode, "mode", "m", string(domain.ModeNormal), "assessment mode")
	return cmd
}

// runAssessment drives ctrl from line-based input until a report is shown.
func runAssessment(ctx context.Context, ctrl *conversation.Controller, mode domain.Mode, in io.Reader, out io.Writer) error {
	snap, err := ctrl.Begin(ctx, mode)
	if err != nil {
		return err
	}

	if snap.Step == conversation.StepAssessment {
		fmt.Fprintf(out, "\n%s\n", snap.Prompt)
		if snap.Degraded {
			return errors.New("backend unavailable")
		}
		if err := converse(ctx, ctrl, in, out); err != nil {
			return err
		}
	}

	if ctrl.Snapshot().Step == conversation.StepLoading {
		fmt.Fprintln(out, "\n正在生成你的说明书...")
	}
	ctrl.Wait()

	final := ctrl.Snapshot()
	if final.Report == nil {
		return errors.New("no report produced")
	}
	printReport(out, final)
	return nil
}

func converse(ctx context.Context, ctrl *conversation.Controller, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read answer: %w", err)
			}
			return errors.New("input closed before the assessment finished")
		}
		answer := strings.TrimSpace(scanner.Text())
		if answer == quitCommand {
			ctrl.Restart()
			return errors.New("assessment abandoned")
		}

		snap, err := ctrl.Submit(ctx, answer)
		switch {
		case errors.Is(err, assessment.ErrAnswerTooShort):
			fmt.Fprintf(out, "回答至少需要 %d 个字。\n", assessment.MinAnswerLength)
			continue
		case err != nil:
			return err
		}

		if snap.Notice != "" {
			fmt.Fprintln(out, snap.Notice)
			continue
		}
		if snap.Step != conversation.StepAssessment {
			return nil
		}
		fmt.Fprintf(out, "[%d%%] %s\n", snap.Progress, snap.Prompt)
	}
}

func printReport(out io.Writer, snap conversation.Snapshot) {
	r := snap.Report
	fmt.Fprintln(out, "\n==== 你的使用说明书 ====")
	if snap.Fallback {
		fmt.Fprintln(out, "(生成失败，以下为备用内容)")
	}
	fmt.Fprintf(out, "\n核心特质: %s\n", strings.Join(r.CoreTraits, " / "))
	printSection(out, "深度分析", r.DeepAnalysis)
	printSection(out, "不适合的方向", r.NotSuitable)
	printSection(out, "行动指南", r.ActionGuide)
	if len(r.Careers) > 0 {
		fmt.Fprintln(out, "\n推荐职业:")
		for _, c := range r.Careers {
			fmt.Fprintf(out, "  - %s: %s\n", c.Title, c.Reason)
		}
	}
}

func printSection(out io.Writer, title, body string) {
	if body == "" {
		return
	}
	fmt.Fprintf(out, "\n[%s]\n%s\n", title, body)
}
