// Formata CLI — инструмент командной строки для управления
// заявками, окнами отправки и целевыми платформами через HTTP API.
//
// Использование:
//
//	formata [--api-url URL] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	application  Управление заявками
//	window       Управление окнами отправки
//	target       Управление целевыми платформами
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Formata/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "formata",
		Short:         "Formata CLI — application form automation tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewApplicationCmd(clientFn, outputFn),
		cli.NewWindowCmd(clientFn, outputFn),
		cli.NewTargetCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
