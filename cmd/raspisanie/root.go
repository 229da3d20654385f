package main

import (
	"github.com/spf13/cobra"

	"raspisanie/internal/config"
)

type rootFlags struct {
	config string
	env    []string
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}
	cmd := &cobra.Command{
		Use:   "raspisanie",
		Short: "College timetable scraper",
		Long: `raspisanie polls the college timetable page, parses the timetable,
the bell schedule and the cafeteria schedule, and keeps them in a database.

Settings come from a JSON or YAML file; RASPISANIE_* environment variables
(optionally from a .env file) override secrets and endpoints.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadEnv(f.env...)
		},
	}
	cmd.PersistentFlags().StringVarP(&f.config, "config", "c", "./config.yaml", "path to config file (json or yaml)")
	cmd.PersistentFlags().StringSliceVar(&f.env, "env-file", []string{".env"}, "dotenv files to load before reading the config")

	cmd.AddCommand(newRunCmd(f), newOnceCmd(f), newParseCmd())
	return cmd
}
