package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/xayone/riskd/cmd"
	"github.com/xayone/riskd/config"
	"github.com/xayone/riskd/logger"
)

// Version is populated by build flags with the current Git tag
var Version string

func main() {
	config.Version = Version

	app := &cli.App{
		EnableBashCompletion: true,
		Commands:             cmd.Commands(),
		Name:                 "riskd",
		Usage:                "Score login attempts for account takeover risk",
		UsageText:            "riskd [-d] command [command options]",
		Version:              Version,
		Args:                 true,
		ExitErrHandler:       exitErrHandler,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:     "debug",
				Aliases:  []string{"d"},
				Usage:    "Run in debug mode",
				Value:    false,
				Required: false,
			},
		},
		Before: func(cCtx *cli.Context) error {
			logger.DebugMode = os.Getenv("APP_ENV") == "dev"

			// note that global flags must be placed before the subcommand
			if cCtx.Bool("debug") {
				logger.DebugMode = true
			}

			// the .env file is optional; environment variables win either way
			if err := godotenv.Load("./.env"); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("loading .env file: %w", err)
			}

			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger := logger.GetLogger()
		logger.Fatal().Err(err).Send()
	}
}

// exitErrHandler implements cli.ExitErrHandlerFunc
func exitErrHandler(c *cli.Context, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(c.App.ErrWriter, "\n\n\t[!] %+v\n\n", err.Error())
	cli.OsExiter(1)
}
