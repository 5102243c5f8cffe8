package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewTargetCmd создаёт группу команд для управления целевыми платформами.
func NewTargetCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "target",
		Short: "Manage target platforms",
	}

	cmd.AddCommand(
		newTargetResetCmd(clientFn, outputFn),
	)

	return cmd
}

func newTargetResetCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "reset PLATFORM",
		Short: "Reset adaptive state (rate limiter, circuit breaker) for a platform",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			reset, err := client.ResetTarget(args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Target reset requested: %s", reset.Platform))
			return nil
		},
	}
}
