package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewWindowCmd создаёт группу команд для управления окнами отправки.
func NewWindowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "window",
		Short: "Manage submission windows",
	}

	cmd.AddCommand(
		newWindowListCmd(clientFn, outputFn),
		newWindowCreateCmd(clientFn, outputFn),
		newWindowShowCmd(clientFn, outputFn),
		newWindowUpdateCmd(clientFn, outputFn),
		newWindowDeleteCmd(clientFn, outputFn),
		newWindowEnableCmd(clientFn, outputFn),
		newWindowDisableCmd(clientFn, outputFn),
	)

	return cmd
}

func newWindowListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var profileID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List submission windows",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			windows, err := client.ListWindows(profileID)
			if err != nil {
				return err
			}

			headers := []string{"ID", "PROFILE_ID", "NAME", "CRON", "INTERVAL", "ENABLED", "NEXT_DUE"}
			rows := make([][]string, len(windows))
			for i, w := range windows {
				rows[i] = []string{
					w.ID, w.ProfileID, w.Name, w.CronExpr, formatInterval(w.IntervalSec),
					strconv.FormatBool(w.Enabled), w.NextDueAt,
				}
			}

			out.Print(headers, rows, windows)
			return nil
		},
	}

	cmd.Flags().StringVar(&profileID, "profile-id", "", "Filter by profile ID")

	return cmd
}

func newWindowCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var profileID string
	var platform string
	var name string
	var cronExpr string
	var intervalSec int
	var timezone string
	var batchSize int

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a submission window",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			req := CreateWindowRequest{
				ProfileID:   profileID,
				Platform:    platform,
				Name:        name,
				CronExpr:    cronExpr,
				IntervalSec: intervalSec,
				Timezone:    timezone,
				BatchSize:   batchSize,
				Enabled:     true,
			}

			window, err := client.CreateWindow(req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Window created: %s", window.ID))
			out.Print(
				[]string{"ID", "PROFILE_ID", "NAME", "CRON", "INTERVAL", "ENABLED", "NEXT_DUE"},
				[][]string{{
					window.ID, window.ProfileID, window.Name, window.CronExpr,
					formatInterval(window.IntervalSec), strconv.FormatBool(window.Enabled),
					window.NextDueAt,
				}},
				window,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&profileID, "profile-id", "", "Applicant profile ID (required)")
	cmd.Flags().StringVar(&platform, "platform", "", "Restrict window to a target platform")
	cmd.Flags().StringVar(&name, "name", "", "Window name")
	cmd.Flags().StringVar(&cronExpr, "cron", "", "Cron expression (e.g. '0 9 * * 1-5')")
	cmd.Flags().IntVar(&intervalSec, "interval", 0, "Interval in seconds")
	cmd.Flags().StringVar(&timezone, "timezone", "", "Timezone (e.g. 'America/New_York')")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Maximum applications dispatched per opening")
	cmd.MarkFlagRequired("profile-id")

	return cmd
}

func newWindowShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show submission window details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			window, err := client.GetWindow(args[0])
			if err != nil {
				return err
			}

			out.Print(
				[]string{"ID", "PROFILE_ID", "NAME", "CRON", "INTERVAL", "TIMEZONE", "ENABLED", "NEXT_DUE"},
				[][]string{{
					window.ID, window.ProfileID, window.Name, window.CronExpr,
					formatInterval(window.IntervalSec), window.Timezone,
					strconv.FormatBool(window.Enabled), window.NextDueAt,
				}},
				window,
			)
			return nil
		},
	}
}

func newWindowUpdateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var name string
	var cronExpr string
	var intervalSec int
	var timezone string
	var batchSize int

	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Update a submission window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			req := UpdateWindowRequest{}
			if cmd.Flags().Changed("name") {
				req.Name = &name
			}
			if cmd.Flags().Changed("cron") {
				req.CronExpr = &cronExpr
			}
			if cmd.Flags().Changed("interval") {
				req.IntervalSec = &intervalSec
			}
			if cmd.Flags().Changed("timezone") {
				req.Timezone = &timezone
			}
			if cmd.Flags().Changed("batch-size") {
				req.BatchSize = &batchSize
			}

			window, err := client.UpdateWindow(args[0], req)
			if err != nil {
				return err
			}

			out.Success("Window updated")
			out.Print(
				[]string{"ID", "PROFILE_ID", "NAME", "CRON", "INTERVAL", "ENABLED", "NEXT_DUE"},
				[][]string{{
					window.ID, window.ProfileID, window.Name, window.CronExpr,
					formatInterval(window.IntervalSec), strconv.FormatBool(window.Enabled),
					window.NextDueAt,
				}},
				window,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "New window name")
	cmd.Flags().StringVar(&cronExpr, "cron", "", "New cron expression")
	cmd.Flags().IntVar(&intervalSec, "interval", 0, "New interval in seconds")
	cmd.Flags().StringVar(&timezone, "timezone", "", "New timezone")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "New batch size")

	return cmd
}

func newWindowDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a submission window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.DeleteWindow(args[0]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Window deleted: %s", args[0]))
			return nil
		},
	}
}

func newWindowEnableCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "enable ID",
		Short: "Enable a submission window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if _, err := client.EnableWindow(args[0]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Window enabled: %s", args[0]))
			return nil
		},
	}
}

func newWindowDisableCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "disable ID",
		Short: "Disable a submission window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if _, err := client.DisableWindow(args[0]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Window disabled: %s", args[0]))
			return nil
		},
	}
}

func formatInterval(sec int) string {
	if sec <= 0 {
		return ""
	}
	return strconv.Itoa(sec) + "s"
}
