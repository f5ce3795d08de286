package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/stemsi/exstem-grading/internal/app"
	"github.com/stemsi/exstem-grading/internal/model"
	"github.com/stemsi/exstem-grading/internal/service"
)

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Force-submit abandoned attempts whose time has run out",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := newSession(cmd)
			return s.withApp(cmd, func(ctx context.Context, a *app.App) error {
				report, err := a.Sweep.RunExpirySweep(ctx)
				if errors.Is(err, service.ErrSweepInProgress) {
					return fmt.Errorf("another sweep holds the lock, try again later")
				}
				if err != nil {
					return err
				}
				return s.out.sweepReport(report)
			})
		},
	}
}

func forceSubmitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "force-submit <attempt-id>",
		Short: "Resolve an in-progress attempt with its stored answers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := newSession(cmd)
			attemptID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid attempt ID: %w", err)
			}
			return s.withApp(cmd, func(ctx context.Context, a *app.App) error {
				attempt, err := a.Attempts.ForceSubmit(ctx, attemptID)
				if err != nil {
					return err
				}
				return s.out.attempt(attempt)
			})
		},
	}
}

func publishCmd(publish bool) *cobra.Command {
	use, short := "publish <result-id>", "Make a result visible to its candidate"
	if !publish {
		use, short = "unpublish <result-id>", "Hide a published result again"
	}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := newSession(cmd)
			resultID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid result ID: %w", err)
			}
			actor := s.v.GetInt("actor")
			if actor <= 0 {
				return fmt.Errorf("--actor must be a positive admin user ID")
			}
			return s.withApp(cmd, func(ctx context.Context, a *app.App) error {
				var res *model.Result
				if publish {
					res, err = a.Results.Publish(ctx, resultID, actor)
				} else {
					res, err = a.Results.Unpublish(ctx, resultID, actor)
				}
				if err != nil {
					return err
				}
				return s.out.results([]model.Result{*res}, 1)
			})
		},
	}
	cmd.Flags().Int("actor", 0, "Admin user ID recorded in the audit log")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func activationCmd(active bool) *cobra.Command {
	use, short := "activate <exam-id>", "Allow new attempts against an exam"
	if !active {
		use, short = "deactivate <exam-id>", "Stop new attempts against an exam; running ones continue"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := newSession(cmd)
			examID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid exam ID: %w", err)
			}
			return s.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Catalog.SetActive(ctx, examID, active); err != nil {
					return err
				}
				return s.out.keyValues([][2]string{
					{"exam_id", examID.String()},
					{"active", fmt.Sprint(active)},
				})
			})
		},
	}
}

func examCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exam",
		Short: "Manage exam availability",
	}
	cmd.AddCommand(activationCmd(true), activationCmd(false))
	return cmd
}

func resultsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "results",
		Short: "List results",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := newSession(cmd)
			f := model.ResultFilter{
				Page:    s.v.GetInt("page"),
				PerPage: s.v.GetInt("per-page"),
			}.Normalized()
			if id := s.v.GetInt("user-id"); id > 0 {
				f.UserID = &id
			}
			if raw := s.v.GetString("exam-id"); raw != "" {
				examID, err := uuid.Parse(raw)
				if err != nil {
					return fmt.Errorf("invalid exam ID: %w", err)
				}
				f.ExamID = &examID
			}
			if cmd.Flags().Changed("published") {
				published := s.v.GetBool("published")
				f.Published = &published
			}
			return s.withApp(cmd, func(ctx context.Context, a *app.App) error {
				results, total, err := a.Results.ListAll(ctx, f)
				if err != nil {
					return err
				}
				return s.out.results(results, total)
			})
		},
	}
	f := cmd.Flags()
	f.String("exam-id", "", "Only results of this exam")
	f.Int("user-id", 0, "Only results of this candidate")
	f.Bool("published", false, "Only published (true) or unpublished (false) results")
	f.Int("page", 1, "Page number")
	f.Int("per-page", model.DefaultResultsPerPage, "Results per page")
	return cmd
}

func drainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drain",
		Short: "Persist everything waiting in the audit and notification queues",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := newSession(cmd)
			return s.withApp(cmd, func(ctx context.Context, a *app.App) error {
				audits, err := a.AuditWorker.Drain(ctx)
				if err != nil {
					return fmt.Errorf("drain audit queue: %w", err)
				}
				notes, err := a.NotificationWorker.Drain(ctx)
				if err != nil {
					return fmt.Errorf("drain notification queue: %w", err)
				}
				return s.out.keyValues([][2]string{
					{"audit_events", fmt.Sprint(audits)},
					{"notifications", fmt.Sprint(notes)},
				})
			})
		},
	}
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a signed token for local testing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := newSession(cmd)
			userID := s.v.GetInt("user-id")
			if userID <= 0 {
				return fmt.Errorf("--user-id must be positive")
			}
			role := model.Role(s.v.GetString("role"))
			if role != model.RoleCandidate && role != model.RoleAdmin {
				return fmt.Errorf("--role must be %q or %q", model.RoleCandidate, model.RoleAdmin)
			}

			perms := s.v.GetStringSlice("permission")
			if s.v.GetBool("all-permissions") {
				perms = model.PermissionStrings()
			}
			if role == model.RoleCandidate && len(perms) > 0 {
				return fmt.Errorf("candidate tokens carry no permissions")
			}

			auth := service.NewAuthService(s.cfg.JWTSecret, s.cfg.JWTExpiry)
			tok, err := auth.GenerateToken(userID, role, perms)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return err
		},
	}
	f := cmd.Flags()
	f.Int("user-id", 0, "Subject user ID")
	f.String("role", string(model.RoleCandidate), "Role (candidate, admin)")
	f.StringSlice("permission", nil, "Permission code (repeatable)")
	f.Bool("all-permissions", false, "Grant every admin permission")
	return cmd
}
