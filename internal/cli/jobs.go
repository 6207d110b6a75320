package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/solenelabs/aria/internal/config"
	"github.com/solenelabs/aria/pkg/cron"
)

var (
	jobAgent   string
	jobEvery   string
	jobCronExp string
	jobAt      string
	jobOnce    bool
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage scheduled jobs",
	Long: `Inspect and edit the scheduled-job store.
Edits made while the service is running take effect after a restart.`,
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scheduled jobs",
	RunE:  runJobsList,
}

var jobsAddCmd = &cobra.Command{
	Use:   "add [name] [message]",
	Short: "Add a scheduled job",
	Args:  cobra.ExactArgs(2),
	RunE:  runJobsAdd,
}

var jobsRemoveCmd = &cobra.Command{
	Use:   "remove [id]",
	Short: "Remove a scheduled job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsRemove,
}

func init() {
	jobsAddCmd.Flags().StringVar(&jobAgent, "agent", "", "agent the job runs as (default from config)")
	jobsAddCmd.Flags().StringVar(&jobEvery, "every", "", "run interval, e.g. 30m or 2h")
	jobsAddCmd.Flags().StringVar(&jobCronExp, "cron", "", "cron expression, e.g. \"0 9 * * 1-5\"")
	jobsAddCmd.Flags().StringVar(&jobAt, "at", "", "one-shot run time in RFC 3339 format")
	jobsAddCmd.Flags().BoolVar(&jobOnce, "delete-after-run", false, "remove the job after a successful run")

	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsAddCmd)
	jobsCmd.AddCommand(jobsRemoveCmd)
	rootCmd.AddCommand(jobsCmd)
}

// openJobStore opens the cron store for offline edits. Jobs added here are
// fired by the running service, not by this process.
func openJobStore() (*cron.Service, error) {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return nil, err
	}
	return cron.NewService(cron.Options{
		StorePath:    cfg.Cron.StorePath,
		DefaultAgent: cfg.DefaultAgent,
		Passive:      true,
	})
}

func runJobsList(cmd *cobra.Command, args []string) error {
	svc, err := openJobStore()
	if err != nil {
		return err
	}
	defer func() { _ = svc.Stop() }()

	jobs := svc.List()
	if len(jobs) == 0 {
		fmt.Println("No scheduled jobs.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tAGENT\tENABLED\tNEXT RUN\tLAST STATUS")
	for _, job := range jobs {
		next := "-"
		if job.State.NextRun != nil {
			next = job.State.NextRun.Local().Format(time.RFC3339)
		}
		status := job.State.LastStatus
		if status == "" {
			status = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t%s\n", job.ID, job.Name, job.Agent, job.Enabled, next, status)
	}
	return w.Flush()
}

func runJobsAdd(cmd *cobra.Command, args []string) error {
	schedule, err := scheduleFromFlags()
	if err != nil {
		return err
	}

	svc, err := openJobStore()
	if err != nil {
		return err
	}
	defer func() { _ = svc.Stop() }()

	job, err := svc.Add(cron.AddParams{
		Agent:          jobAgent,
		Name:           args[0],
		Message:        args[1],
		Enabled:        true,
		DeleteAfterRun: jobOnce,
		Schedule:       schedule,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Added job %s (%s), next run %s\n", job.Name, job.ID, job.State.NextRun.Local().Format(time.RFC3339))
	return nil
}

func runJobsRemove(cmd *cobra.Command, args []string) error {
	svc, err := openJobStore()
	if err != nil {
		return err
	}
	defer func() { _ = svc.Stop() }()

	if err := svc.Remove(args[0]); err != nil {
		return err
	}
	fmt.Printf("Removed job %s\n", args[0])
	return nil
}

func scheduleFromFlags() (cron.Schedule, error) {
	set := 0
	for _, v := range []string{jobEvery, jobCronExp, jobAt} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return cron.Schedule{}, fmt.Errorf("exactly one of --every, --cron, or --at is required")
	}

	switch {
	case jobEvery != "":
		return cron.Schedule{Kind: cron.ScheduleKindEvery, Every: jobEvery}, nil
	case jobCronExp != "":
		return cron.Schedule{Kind: cron.ScheduleKindCron, Expr: jobCronExp}, nil
	default:
		at, err := time.Parse(time.RFC3339, jobAt)
		if err != nil {
			return cron.Schedule{}, fmt.Errorf("invalid --at time: %w", err)
		}
		return cron.Schedule{Kind: cron.ScheduleKindAt, At: at}, nil
	}
}
