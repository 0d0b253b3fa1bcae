package main

import (
	"errors"
	"fmt"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pawluxe/internal/config"
	"pawluxe/internal/export"
	"pawluxe/internal/metrics"
	"pawluxe/internal/store"
	"pawluxe/internal/workflow"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Plan, queue and run identity exports",
	}
	exportCmd.AddCommand(newExportSubmitCommand(ctx))
	exportCmd.AddCommand(newExportPlanCommand(ctx))
	exportCmd.AddCommand(newExportWorkerCommand(ctx))
	exportCmd.AddCommand(newExportListCommand(ctx))
	exportCmd.AddCommand(newExportShowCommand(ctx))
	return exportCmd
}

// requestFlags are the job payload flags shared by submit and plan.
type requestFlags struct {
	mode        string
	padding     float64
	mergeGap    float64
	minDuration float64
	noVideo     bool
	target      float64
	perClip     float64
}

func (f *requestFlags) register(cmd *cobra.Command, defaults config.Export) {
	cmd.Flags().StringVar(&f.mode, "mode", string(store.ModeFull), "Export mode: full or highlights")
	cmd.Flags().Float64Var(&f.padding, "padding-seconds", defaults.PaddingSeconds, "Seconds added around each observed span")
	cmd.Flags().Float64Var(&f.mergeGap, "merge-gap-seconds", defaults.MergeGapSeconds, "Merge excerpts of one segment separated by at most this gap")
	cmd.Flags().Float64Var(&f.minDuration, "min-duration-seconds", defaults.MinDurationSeconds, "Drop excerpts shorter than this")
	cmd.Flags().BoolVar(&f.noVideo, "no-video", !defaults.RenderVideo, "Write the manifest only")
	cmd.Flags().Float64Var(&f.target, "target-seconds", defaults.TargetSeconds, "Highlights: total duration to reach")
	cmd.Flags().Float64Var(&f.perClip, "per-clip-seconds", defaults.PerClipSeconds, "Highlights: maximum length of each clip")
}

func (f *requestFlags) request() (store.JobRequest, error) {
	mode, err := store.ParseJobMode(f.mode)
	if err != nil {
		return store.JobRequest{}, err
	}
	req := store.JobRequest{
		Mode:               mode,
		PaddingSeconds:     f.padding,
		MergeGapSeconds:    f.mergeGap,
		MinDurationSeconds: f.minDuration,
		RenderVideo:        !f.noVideo,
		TargetSeconds:      f.target,
		PerClipSeconds:     f.perClip,
	}
	return req, req.Validate()
}

// exportDefaults returns the [export] section, or built-ins when the config
// failed to load.
func exportDefaults(ctx *commandContext) config.Export {
	if cfg, err := ctx.ensureConfig(); err == nil && cfg != nil {
		return cfg.Export
	}
	return config.Default().Export
}

func newExportSubmitCommand(ctx *commandContext) *cobra.Command {
	var flags requestFlags
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "submit <global-track-id>",
		Short: "Queue an export job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.request()
			if err != nil {
				return err
			}
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				job, err := st.SubmitJob(cmd.Context(), args[0], req)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, job)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued export job %d for %s (%s)\n", job.ID, job.GlobalTrackID, job.Mode)
				return nil
			})
		},
	}
	flags.register(cmd, config.Default().Export)
	cmd.PreRunE = applyConfigDefaults(ctx, cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newExportPlanCommand(ctx *commandContext) *cobra.Command {
	var flags requestFlags
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "plan <global-track-id>",
		Short: "Show the excerpts an export would contain without queueing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.request()
			if err != nil {
				return err
			}
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				plan, err := export.NewPlanner(st).Plan(cmd.Context(), args[0], export.ParamsFromRequest(req))
				if err != nil {
					return err
				}
				if req.Mode == store.ModeHighlights {
					plan.Excerpts = export.SelectHighlights(plan.Excerpts, req.TargetSeconds, req.PerClipSeconds)
					plan.Summary = plan.Summary.WithHighlights(req.TargetSeconds, req.PerClipSeconds, plan.Excerpts)
				}
				if asJSON {
					if plan.Excerpts == nil {
						plan.Excerpts = []export.Excerpt{}
					}
					return writeJSON(cmd, plan)
				}
				renderPlan(cmd, plan)
				return nil
			})
		},
	}
	flags.register(cmd, config.Default().Export)
	cmd.PreRunE = applyConfigDefaults(ctx, cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

// applyConfigDefaults replaces built-in flag defaults with the [export]
// section of the loaded config unless the user set the flag.
func applyConfigDefaults(ctx *commandContext, cmd *cobra.Command) func(*cobra.Command, []string) error {
	return func(*cobra.Command, []string) error {
		defaults := exportDefaults(ctx)
		values := map[string]string{
			"padding-seconds":      formatFloatFlag(defaults.PaddingSeconds),
			"merge-gap-seconds":    formatFloatFlag(defaults.MergeGapSeconds),
			"min-duration-seconds": formatFloatFlag(defaults.MinDurationSeconds),
			"no-video":             strconv.FormatBool(!defaults.RenderVideo),
			"target-seconds":       formatFloatFlag(defaults.TargetSeconds),
			"per-clip-seconds":     formatFloatFlag(defaults.PerClipSeconds),
		}
		for name, value := range values {
			if cmd.Flags().Changed(name) {
				continue
			}
			if err := cmd.Flags().Set(name, value); err != nil {
				return fmt.Errorf("apply default for --%s: %w", name, err)
			}
		}
		return nil
	}
}

func formatFloatFlag(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func renderPlan(cmd *cobra.Command, plan export.Plan) {
	out := cmd.OutOrStdout()
	s := plan.Summary
	fmt.Fprintf(out, "Global track: %s\n", s.GlobalTrackID)
	fmt.Fprintf(out, "Tracks: %d  Segments: %d  Excerpts: %d  Total: %ss\n",
		s.TrackCount, s.SegmentCount, s.ExcerptCount, formatSeconds(s.TotalDurationSeconds))
	if s.HighlightExcerptCount != nil {
		fmt.Fprintf(out, "Highlights: %d excerpts, %ss\n", *s.HighlightExcerptCount, formatSeconds(export.TotalDuration(plan.Excerpts)))
	}
	if len(plan.Excerpts) == 0 {
		fmt.Fprintln(out, "No excerpts")
		return
	}
	rows := make([][]string, 0, len(plan.Excerpts))
	for _, e := range plan.Excerpts {
		rows = append(rows, []string{
			e.CameraID,
			e.SegmentID,
			formatTimestamp(e.ClipStart),
			formatSeconds(e.OffsetSeconds),
			formatSeconds(e.DurationSeconds),
		})
	}
	fmt.Fprint(out, renderTable(
		[]string{"Camera", "Segment", "Clip start", "Offset", "Duration"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight},
	))
}

func newExportWorkerCommand(ctx *commandContext) *cobra.Command {
	var once bool
	var pollSeconds float64

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Process queued export jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := ctx.logger()
			if err != nil {
				return err
			}
			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				reg, err := metrics.NewMetrics()
				if err != nil {
					return err
				}
				metricsDone := make(chan error, 1)
				go func() { metricsDone <- reg.Serve(runCtx, cfg.Metrics.Listen, logger) }()

				opts := []workflow.ManagerOption{workflow.WithMetrics(reg.Export)}
				if cmd.Flags().Changed("poll-seconds") {
					opts = append(opts, workflow.WithPollInterval(time.Duration(pollSeconds*float64(time.Second))))
				}
				mgr := workflow.NewManager(cfg, st, logger, opts...)
				result, runErr := mgr.Run(runCtx, workflow.RunOptions{Once: once})
				stop()
				if err := <-metricsDone; err != nil && runErr == nil {
					runErr = err
				}
				if runErr != nil {
					return runErr
				}
				return writeJSONLine(cmd, result)
			})
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "Process at most one pending job and exit")
	cmd.Flags().Float64Var(&pollSeconds, "poll-seconds", 1.5, "Idle poll interval (minimum 0.2)")
	return cmd
}

func newExportListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List export jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := make([]store.JobStatus, 0, len(statuses))
			for _, s := range statuses {
				status, err := parseJobStatus(s)
				if err != nil {
					return err
				}
				filter = append(filter, status)
			}
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				jobs, err := st.ListJobs(cmd.Context(), filter...)
				if err != nil {
					return err
				}
				if asJSON {
					if jobs == nil {
						jobs = []*store.ExportJob{}
					}
					return writeJSON(cmd, jobs)
				}
				if len(jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No export jobs")
					return nil
				}
				rows := make([][]string, 0, len(jobs))
				for _, j := range jobs {
					rows = append(rows, []string{
						strconv.FormatInt(j.ID, 10),
						j.GlobalTrackID,
						string(j.Mode),
						string(j.Status),
						formatTimestamp(j.CreatedAt),
						orDash(j.ExportID),
					})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Global track", "Mode", "Status", "Created", "Export"},
					rows,
					[]columnAlignment{alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newExportShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one export job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid job id %q", args[0])
			}
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				job, err := st.GetJob(cmd.Context(), id)
				if err != nil {
					return err
				}
				if job == nil {
					return fmt.Errorf("export job %d not found", id)
				}
				if asJSON {
					return writeJSON(cmd, job)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Job:          %d\n", job.ID)
				fmt.Fprintf(out, "Global track: %s\n", job.GlobalTrackID)
				fmt.Fprintf(out, "Mode:         %s\n", job.Mode)
				fmt.Fprintf(out, "Status:       %s\n", job.Status)
				fmt.Fprintf(out, "Created:      %s\n", formatTimestamp(job.CreatedAt))
				fmt.Fprintf(out, "Started:      %s\n", formatOptionalTimestamp(job.StartedAt))
				fmt.Fprintf(out, "Finished:     %s\n", formatOptionalTimestamp(job.FinishedAt))
				fmt.Fprintf(out, "Export:       %s\n", orDash(job.ExportID))
				fmt.Fprintf(out, "Manifest:     %s\n", orDash(job.ManifestPath))
				fmt.Fprintf(out, "Video:        %s\n", orDash(job.VideoPath))
				if job.ErrorMessage != "" {
					fmt.Fprintf(out, "Error:        %s\n", job.ErrorMessage)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func parseJobStatus(value string) (store.JobStatus, error) {
	status := store.JobStatus(strings.ToLower(strings.TrimSpace(value)))
	switch status {
	case store.JobPending, store.JobRunning, store.JobDone, store.JobFailed:
		return status, nil
	default:
		return "", errors.New("unknown job status " + strconv.Quote(value))
	}
}
