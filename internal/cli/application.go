package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// NewApplicationCmd создаёт группу команд для управления заявками.
func NewApplicationCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "application",
		Short: "Manage applications",
	}

	cmd.AddCommand(
		newApplicationListCmd(clientFn, outputFn),
		newApplicationSubmitCmd(clientFn, outputFn),
		newApplicationShowCmd(clientFn, outputFn),
		newApplicationCancelCmd(clientFn, outputFn),
		newApplicationProgressCmd(clientFn, outputFn),
	)

	return cmd
}

func newApplicationListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var profileID string
	var platform string
	var state string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List applications",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			apps, err := client.ListApplications(ListApplicationsOpts{
				ProfileID: profileID,
				Platform:  platform,
				State:     state,
				Limit:     limit,
			})
			if err != nil {
				return err
			}

			headers := []string{"ID", "PLATFORM", "JOB_REF", "STATE", "STEP", "OUTCOME", "CREATED"}
			rows := make([][]string, len(apps))
			for i, a := range apps {
				rows[i] = []string{
					a.ID, a.Platform, a.JobRef, a.State,
					strconv.Itoa(a.StepIndex), a.Outcome, a.CreatedAt,
				}
			}

			out.Print(headers, rows, apps)
			return nil
		},
	}

	cmd.Flags().StringVar(&profileID, "profile-id", "", "Filter by profile ID")
	cmd.Flags().StringVar(&platform, "platform", "", "Filter by target platform")
	cmd.Flags().StringVar(&state, "state", "", "Filter by state (INITIALIZED, FILLING_STEP, COMPLETED, FAILED, ...)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newApplicationSubmitCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var platform string
	var jobRef string
	var profileID string
	var configFile string
	var optionsFile string
	var deferred bool

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a new application",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			config, err := os.ReadFile(configFile)
			if err != nil {
				return fmt.Errorf("failed to read config file: %w", err)
			}
			if !json.Valid(config) {
				return fmt.Errorf("config file %s is not valid JSON", configFile)
			}

			req := CreateApplicationRequest{
				Platform:  platform,
				JobRef:    jobRef,
				ProfileID: profileID,
				Config:    config,
				Deferred:  deferred,
			}

			if optionsFile != "" {
				options, err := os.ReadFile(optionsFile)
				if err != nil {
					return fmt.Errorf("failed to read options file: %w", err)
				}
				if !json.Valid(options) {
					return fmt.Errorf("options file %s is not valid JSON", optionsFile)
				}
				req.Options = options
			}

			app, err := client.CreateApplication(req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Application submitted: %s", app.ID))
			out.Print(
				[]string{"ID", "PLATFORM", "JOB_REF", "STATE", "DEFERRED", "CREATED"},
				[][]string{{
					app.ID, app.Platform, app.JobRef, app.State,
					strconv.FormatBool(app.Deferred), app.CreatedAt,
				}},
				app,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&platform, "platform", "", "Target platform identifier (required)")
	cmd.Flags().StringVar(&jobRef, "job-ref", "", "Job reference on the target platform (required)")
	cmd.Flags().StringVar(&profileID, "profile-id", "", "Applicant profile ID (required)")
	cmd.Flags().StringVar(&configFile, "config", "", "Path to target config JSON file (required)")
	cmd.Flags().StringVar(&optionsFile, "options", "", "Path to options JSON file")
	cmd.Flags().BoolVar(&deferred, "deferred", false, "Defer dispatch until a submission window opens")
	cmd.MarkFlagRequired("platform")
	cmd.MarkFlagRequired("job-ref")
	cmd.MarkFlagRequired("profile-id")
	cmd.MarkFlagRequired("config")

	return cmd
}

func newApplicationShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show application details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			app, err := client.GetApplication(args[0])
			if err != nil {
				return err
			}

			out.Print(
				[]string{"ID", "PLATFORM", "JOB_REF", "STATE", "STEP", "OUTCOME", "ERRORS", "CREATED"},
				[][]string{{
					app.ID, app.Platform, app.JobRef, app.State,
					strconv.Itoa(app.StepIndex), app.Outcome,
					strconv.Itoa(len(app.ErrorLog)), app.CreatedAt,
				}},
				app,
			)
			return nil
		},
	}
}

func newApplicationCancelCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel ID",
		Short: "Cancel an application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			app, err := client.CancelApplication(args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Cancellation requested: %s", app.ID))
			return nil
		},
	}
}

func newApplicationProgressCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "progress ID",
		Short: "Show application progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			progress, err := client.GetProgress(args[0])
			if err != nil {
				return err
			}

			totalSteps := "?"
			if progress.Progress.TotalSteps > 0 {
				totalSteps = strconv.Itoa(progress.Progress.TotalSteps)
			}

			out.Print(
				[]string{"ID", "PHASE", "STEP", "TOTAL", "PERCENT"},
				[][]string{{
					progress.ApplicationID, progress.Progress.Phase,
					strconv.Itoa(progress.Progress.StepIndex), totalSteps,
					fmt.Sprintf("%.0f%%", progress.Progress.Percentage),
				}},
				progress,
			)
			return nil
		},
	}
}
