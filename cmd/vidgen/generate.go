package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/skyreel/vidgen/genconfig"
	"github.com/skyreel/vidgen/pipeline"
)

func newGenerateCmd(flags *appFlags) *cobra.Command {
	var (
		modelType string
		timeout   time.Duration
		batchDir  string
		parallel  int
		dryRun    bool
		stream    bool
	)

	cmd := &cobra.Command{
		Use:   "generate [config]",
		Short: "Run a generation attempt end to end",
		Long: "Resolve the named config, build the prompt, submit the job, wait for\n" +
			"completion and persist artifacts under the output root. With --batch,\n" +
			"every config in the given directory is generated instead.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags, !dryRun)
			if err != nil {
				return err
			}

			if batchDir != "" {
				return runBatch(cmd, a, batchDir, modelType, timeout, parallel)
			}
			if len(args) != 1 {
				return fmt.Errorf("a config name is required unless --batch is used")
			}
			req := pipeline.Request{ModelType: modelType, ConfigName: args[0], Timeout: timeout}

			if dryRun {
				return printPreview(cmd, a, req)
			}
			if stream {
				result, err := a.gen.GenerateStream(cmd.Context(), req, func(delta string) {
					fmt.Fprint(cmd.OutOrStdout(), delta)
				})
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout())
				printResult(cmd, result)
				return nil
			}

			result, err := a.gen.Generate(cmd.Context(), req)
			if err != nil {
				return err
			}
			printResult(cmd, result)
			return nil
		},
	}

	cmd.Flags().StringVarP(&modelType, "model", "m", "veo3", "registered model type")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", pipeline.DefaultTimeout, "max time to wait for job completion")
	cmd.Flags().StringVarP(&batchDir, "batch", "b", "", "generate every config document in this directory")
	cmd.Flags().IntVarP(&parallel, "parallel", "p", 2, "max concurrent generations in batch mode")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "build the request without submitting")
	cmd.Flags().BoolVar(&stream, "stream", false, "stream incremental output (streaming-capable models only)")
	return cmd
}

func runBatch(cmd *cobra.Command, a *app, dir, modelType string, timeout time.Duration, parallel int) error {
	batch := genconfig.NewStore(dir)
	names := batch.ListAvailable()
	if len(names) == 0 {
		return fmt.Errorf("no config documents found in %s", dir)
	}

	// Resolve against the batch directory, keep the name for reporting.
	requests := make([]pipeline.Request, 0, len(names))
	for _, name := range names {
		doc, err := batch.Resolve(name)
		if err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "FAIL  %-20s %v\n", name, err)
			continue
		}
		requests = append(requests, pipeline.Request{ModelType: modelType, ConfigName: name, Inline: doc, Timeout: timeout})
	}
	results := a.gen.GenerateBatch(cmd.Context(), requests, parallel)

	failures := 0
	for _, r := range results {
		if r.Err != nil {
			failures++
			fmt.Fprintf(cmd.OutOrStdout(), "FAIL  %-20s %v\n", r.Request.ConfigName, r.Err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "OK    %-20s %s\n", r.Request.ConfigName, r.Result.OutputDir)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\n%d succeeded, %d failed\n", len(results)-failures, failures)
	if failures > 0 {
		return fmt.Errorf("%d of %d generations failed", failures, len(results))
	}
	return nil
}

func newPreviewCmd(flags *appFlags) *cobra.Command {
	var modelType string

	cmd := &cobra.Command{
		Use:   "preview [config]",
		Short: "Resolve a config and print the request without submitting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags, false)
			if err != nil {
				return err
			}
			return printPreview(cmd, a, pipeline.Request{ModelType: modelType, ConfigName: args[0]})
		},
	}
	cmd.Flags().StringVarP(&modelType, "model", "m", "veo3", "registered model type")
	return cmd
}

func newResumeCmd(flags *appFlags) *cobra.Command {
	var (
		modelType string
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "resume [job-id]",
		Short: "Re-attach to a submitted job and persist its artifacts",
		Long: "After a timeout the job keeps running remotely; resume waits for the\n" +
			"given job id and persists the result as a fresh attempt.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags, true)
			if err != nil {
				return err
			}
			result, err := a.gen.Resume(cmd.Context(), modelType, args[0], timeout)
			if err != nil {
				return err
			}
			printResult(cmd, result)
			return nil
		},
	}
	cmd.Flags().StringVarP(&modelType, "model", "m", "veo3", "registered model type")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", pipeline.DefaultTimeout, "max time to wait for job completion")
	return cmd
}

func newCancelCmd(flags *appFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel [job-id]",
		Short: "Cancel an in-flight job",
		Long: "Ask the remote service to stop the given job. Cancelling a job that\n" +
			"already finished is a no-op.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags, true)
			if err != nil {
				return err
			}
			job, err := a.gen.Cancel(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "job %s: %s\n", job.ID, job.Status)
			return nil
		},
	}
}

func printPreview(cmd *cobra.Command, a *app, req pipeline.Request) error {
	preview, err := a.gen.Preview(req)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Model:  %s (%s)\n", preview.ModelType, preview.RemoteModelID)
	fmt.Fprintf(out, "Prompt: %s\n", preview.Prompt)
	if len(preview.Params) > 0 {
		fmt.Fprintln(out, "Params:")
		for _, key := range sortedKeys(preview.Params) {
			fmt.Fprintf(out, "  %s: %v\n", key, preview.Params[key])
		}
	}
	return nil
}

func printResult(cmd *cobra.Command, result *pipeline.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Job %s finished in %s\n", result.Job.ID, result.Duration.Round(time.Second))
	for _, file := range result.OutputFiles {
		fmt.Fprintln(out, " ", file)
	}
	fmt.Fprintf(out, "Metadata: %s\n", result.OutputDir)
}
