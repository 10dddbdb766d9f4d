package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "batchsubmitter",
		Usage: "Submit batches of L2 blocks to the L1 batch inbox",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "env-file",
				Usage:   "Load environment variables from this file before reading flags",
				EnvVars: []string{"ENV_FILE"},
			},
		},
		Before: loadEnvFile,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run the batch submission loop",
				Flags:  runFlags(),
				Action: run,
			},
			{
				Name:   "status",
				Usage:  "Show the latest submitted batch and the next range of a ledger",
				Flags:  statusFlags(),
				Action: status,
			},
			{
				Name:   "reset",
				Usage:  "Delete every stored batch record of a ledger",
				Flags:  resetFlags(),
				Action: reset,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadEnvFile loads --env-file so that command flags can pick values up through EnvVars.
// Variables already set in the environment win.
func loadEnvFile(c *cli.Context) error {
	path := c.String("env-file")
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}
