package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kalambet/hrcode/internal/archive"
	"github.com/kalambet/hrcode/internal/config"
	"github.com/kalambet/hrcode/internal/solution"
	"github.com/kalambet/hrcode/internal/storage"
)

// --- show ---

var showCmd = &cobra.Command{
	Use:   "show <file>",
	Short: "Show the commit message and target directory for a download",
	Long: `Show the commit message and target directory derived from a solution download.

Examples:
  hrcode show ~/Downloads/compute-the-average.json
  hrcode show ~/Downloads/compute-the-average.json --attempt 2 --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		attempt, _ := cmd.Flags().GetInt("attempt")
		asJSON, _ := cmd.Flags().GetBool("json")

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		rec, err := solution.NewLoader(cfg.Repo.Root).Load(args[0], attempt)
		if err != nil {
			return err
		}
		if err := rec.Validate(); err != nil {
			printWarning("%v", err)
		}
		return writeRecord(cmd.OutOrStdout(), rec, asJSON)
	},
}

func init() {
	showCmd.Flags().Int("attempt", 0, "attempt number (0 for a first solution)")
	showCmd.Flags().Bool("json", false, "print the record as JSON")
}

func writeRecord(w io.Writer, rec solution.Record, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	}
	fmt.Fprintf(w, "%s %s\n", labelColor.Sprint("Message:"), rec.FullMessage)
	fmt.Fprintf(w, "%s %s\n", labelColor.Sprint("Path:   "), rec.FullPath)
	fmt.Fprintf(w, "%s %s\n", labelColor.Sprint("File:   "), rec.FilePath())
	return nil
}

// --- add ---

var addCmd = &cobra.Command{
	Use:   "add <file>...",
	Short: "Commit solution downloads to the repository",
	Long: `Write the code from each download into the solutions repository and commit it.

Examples:
  hrcode add ~/Downloads/compute-the-average.json
  hrcode add ~/Downloads/*.json --push
  hrcode add retry.json --attempt 3 --dry-run`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		opts := a.archiveOptions()
		if cmd.Flags().Changed("strict") {
			opts.Strict, _ = cmd.Flags().GetBool("strict")
		}
		if cmd.Flags().Changed("push") {
			opts.Push, _ = cmd.Flags().GetBool("push")
		}
		opts.DryRun, _ = cmd.Flags().GetBool("dry-run")
		attempt, _ := cmd.Flags().GetInt("attempt")

		ctx := cmd.Context()
		if !opts.DryRun {
			if err := a.requireRepo(ctx); err != nil {
				return err
			}
		}

		results, err := a.archiver(opts).ArchiveAll(ctx, args, attempt)
		for _, res := range results {
			reportResult(res)
		}
		return err
	},
}

func init() {
	addCmd.Flags().Int("attempt", 0, "attempt number (0 numbers repeats automatically)")
	addCmd.Flags().Bool("strict", false, "reject downloads with missing fields")
	addCmd.Flags().Bool("dry-run", false, "show what would be committed without writing")
	addCmd.Flags().Bool("push", false, "push after committing")
}

func reportResult(res archive.Result) {
	switch {
	case res.DryRun:
		printStep("Would commit %q to %s", res.Record.FullMessage, res.Record.FilePath())
	case res.Unchanged:
		printWarning("%s unchanged, nothing to commit", res.Record.FilePath())
	default:
		printSuccess("%s (%s)", res.Record.FullMessage, shortSHA(res.CommitSHA))
	}
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List archived solutions",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		format, _ := cmd.Flags().GetString("format")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		archives, err := a.store.ListArchives(limit, 0)
		if err != nil {
			return fmt.Errorf("listing archives: %w", err)
		}
		return writeHistory(cmd.OutOrStdout(), archives, format, time.Now())
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum number of archives to list")
	historyCmd.Flags().String("format", "table", "output format: table, json, yaml")
}

func writeHistory(w io.Writer, archives []storage.Archive, format string, now time.Time) error {
	if archives == nil {
		archives = []storage.Archive{}
	}

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(archives)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(archives)
	case "table", "":
	default:
		return fmt.Errorf("unknown format %q (want table, json or yaml)", format)
	}

	if len(archives) == 0 {
		fmt.Fprintln(w, "No archives yet.")
		return nil
	}
	for _, a := range archives {
		fmt.Fprintf(w, "%s  %-16s  %s\n",
			stepColor.Sprint(shortSHA(a.CommitSHA)),
			humanize.RelTime(a.CreatedAt, now, "ago", "from now"),
			a.Message,
		)
	}
	return nil
}

// --- submit ---

var submitCmd = &cobra.Command{
	Use:   "submit <file>",
	Short: "Send a download to a running hrcode server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		attempt, _ := cmd.Flags().GetInt("attempt")
		wait, _ := cmd.Flags().GetDuration("wait")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		jobID, err := submitSolution(cmd.Context(), client, args[0], attempt)
		if err != nil {
			return err
		}
		printSuccess("Queued job %s", jobID)

		if wait <= 0 {
			return nil
		}
		job, err := waitForJob(cmd.Context(), client, jobID, wait)
		if err != nil {
			return err
		}
		if job.Status == storage.JobFailed {
			return fmt.Errorf("job %s failed: %s", job.ID, job.LastError)
		}
		printSuccess("Job %s %s", job.ID, job.Status)
		return nil
	},
}

func init() {
	submitCmd.Flags().Int("attempt", 0, "attempt number (0 numbers repeats automatically)")
	submitCmd.Flags().Duration("wait", 0, "wait up to this long for the job to finish")
}

func submitSolution(ctx context.Context, client *apiClient, path string, attempt int) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading file: %w", err)
	}

	target := "/solutions"
	if attempt > 0 {
		target = fmt.Sprintf("/solutions?attempt=%d", attempt)
	}
	resp, err := client.post(ctx, target, data)
	if err != nil {
		return "", err
	}

	var result map[string]string
	if err := decodeJSON(resp, &result); err != nil {
		return "", err
	}
	if result["id"] == "" {
		return "", errors.New("server returned no job id")
	}
	return result["id"], nil
}

var jobPollInterval = 500 * time.Millisecond

func waitForJob(ctx context.Context, client *apiClient, id string, timeout time.Duration) (storage.Job, error) {
	deadline := time.Now().Add(timeout)
	for {
		resp, err := client.get(ctx, "/jobs/"+id)
		if err != nil {
			return storage.Job{}, err
		}
		var job storage.Job
		if err := decodeJSON(resp, &job); err != nil {
			return storage.Job{}, err
		}
		if job.Status == storage.JobCompleted || job.Status == storage.JobFailed {
			return job, nil
		}
		if time.Now().After(deadline) {
			return job, fmt.Errorf("job %s still %s after %s", id, job.Status, timeout)
		}

		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-time.After(jobPollInterval):
		}
	}
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(w, "  %s = %s\n", labelColor.Sprint(k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
