package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/olekukonko/tablewriter"

	"github.com/pf-aics-riken/mpispawner/internal/config"
	"github.com/pf-aics-riken/mpispawner/internal/queue"
	"github.com/pf-aics-riken/mpispawner/internal/storage"
	"github.com/pf-aics-riken/mpispawner/internal/workload"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	okStyle      = cellStyle.Foreground(lipgloss.Color("42"))
	failStyle    = cellStyle.Foreground(lipgloss.Color("196"))
	pendingStyle = cellStyle.Foreground(lipgloss.Color("214"))
)

func runJobsNoun(args []string) int {
	if len(args) < 1 {
		printJobsNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printJobsNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "list":
		return runJobsList(actionArgs)
	case "inspect":
		return runJobsInspect(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown jobs action: %s\n", action)
		return 1
	}
}

func printJobsNounHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: mpispawner jobs <action> [--config PATH]")
	fmt.Fprintln(w, "Actions: list [--limit N] [--json], inspect <id>")
}

func openQueue(ctx context.Context, configPath string) (*queue.Queue, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open database %s: %w", cfg.State.Path, err)
	}
	return queue.New(db), func() { _ = db.Close() }, nil
}

func runJobsList(args []string) int {
	fs := flag.NewFlagSet("jobs list", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to configuration file or directory")
	limit := fs.Int("limit", 20, "Maximum number of jobs to show (0 for all)")
	jsonOut := fs.Bool("json", false, "Output jobs as JSON")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	ctx := context.Background()
	q, closeDB, err := openQueue(ctx, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer closeDB()

	jobs, err := q.List(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if *jsonOut {
		data, err := json.MarshalIndent(jobs, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render jobs JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}
	if len(jobs) == 0 {
		fmt.Println("No jobs.")
		return 0
	}
	fmt.Println(renderJobTable(jobs))
	return 0
}

func renderJobTable(jobs []*queue.Job) string {
	rows := make([][]string, 0, len(jobs))
	for _, j := range jobs {
		exit := "-"
		if j.ExitStatus != nil {
			exit = strconv.Itoa(*j.ExitStatus)
		}
		rows = append(rows, []string{
			shortID(j.ID),
			j.Subworld,
			strconv.Itoa(j.NProcs),
			string(j.Status),
			exit,
			j.Args,
			j.CreatedAt.Local().Format(time.DateTime),
		})
	}

	const statusCol = 3
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "SUBWORLD", "NPROCS", "STATUS", "EXIT", "ARGS", "CREATED").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col != statusCol {
				return cellStyle
			}
			switch queue.Status(rows[row][statusCol]) {
			case queue.StatusSucceeded:
				return okStyle
			case queue.StatusFailed, queue.StatusDead:
				return failStyle
			default:
				return pendingStyle
			}
		})
	return t.Render()
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func runJobsInspect(args []string) int {
	fs := flag.NewFlagSet("jobs inspect", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: mpispawner jobs inspect [--config PATH] <id>")
		return 1
	}
	jobID := fs.Arg(0)

	ctx := context.Background()
	q, closeDB, err := openQueue(ctx, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer closeDB()

	job, err := q.Get(ctx, jobID)
	if errors.Is(err, queue.ErrJobNotFound) {
		fmt.Fprintf(os.Stderr, "Job %s not found\n", jobID)
		return 1
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	reports, err := q.Reports(ctx, jobID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if err := writeJobDetail(os.Stdout, job, reports); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func writeJobDetail(w io.Writer, job *queue.Job, reports []queue.Report) error {
	detail := tablewriter.NewWriter(w)
	detail.Header("Field", "Value")
	rows := [][]string{
		{"ID", job.ID},
		{"Subworld", job.Subworld},
		{"NProcs", strconv.Itoa(job.NProcs)},
		{"Args", job.Args},
		{"Trace", strconv.FormatBool(job.Trace)},
		{"Status", string(job.Status)},
		{"Submitted By", job.SubmittedBy},
		{"Ranks", joinInts(job.Ranks)},
		{"Created At", job.CreatedAt.Format(time.RFC3339)},
	}
	if job.StartedAt != nil {
		rows = append(rows, []string{"Started At", job.StartedAt.Format(time.RFC3339)})
	}
	if job.CompletedAt != nil {
		rows = append(rows, []string{"Completed At", job.CompletedAt.Format(time.RFC3339)})
	}
	if job.ExitStatus != nil {
		rows = append(rows, []string{"Exit Status", strconv.Itoa(*job.ExitStatus)})
	}
	if job.LastError != nil {
		rows = append(rows, []string{"Error", *job.LastError})
	}
	for _, r := range rows {
		if err := detail.Append(r[0], r[1]); err != nil {
			return err
		}
	}
	if err := detail.Render(); err != nil {
		return err
	}

	if len(reports) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	ranks := tablewriter.NewWriter(w)
	ranks.Header("Rank", "Status", "Reported At")
	for _, r := range reports {
		if err := ranks.Append(strconv.Itoa(r.Rank), strconv.Itoa(int(r.Status)), r.ReportedAt.Format(time.RFC3339)); err != nil {
			return err
		}
	}
	return ranks.Render()
}

func runPrograms(args []string) int {
	if len(args) > 0 && !hasHelpFlag(args) {
		fmt.Fprintln(os.Stderr, "Usage: mpispawner programs")
		return 1
	}
	for _, name := range workload.New(context.Background(), workload.Options{}).Names() {
		fmt.Println(name)
	}
	return 0
}
