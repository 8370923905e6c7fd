package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/crombird/cmd"
)

const (
	version = "0.1.0"
)

func main() {
	app := &cli.App{
		Name:    "crombird",
		Usage:   "SCP wiki lookup bot for Reddit",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
				Value:   "crombird.toml",
			},
		},
		Commands: []*cli.Command{
			cmd.BotCommand(),
			cmd.ConfigCommand(),
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
