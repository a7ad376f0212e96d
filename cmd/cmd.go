package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"

	"github.com/xayone/riskd/config"
	"github.com/xayone/riskd/util"
)

var (
	ErrMissingConfigPath = errors.New("config path parameter is required")
	ErrTooManyArguments  = errors.New("too many arguments provided")
)

func Commands() []*cli.Command {
	return []*cli.Command{
		ServeCommand,
		ValidateConfigCommand,
	}
}

func ConfigFlag(required bool) *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "config",
		Aliases:  []string{"c"},
		Usage:    "Load configuration from `FILE`",
		Value:    config.DefaultConfigPath,
		Required: required,
		Action: func(_ *cli.Context, path string) error {
			return ValidateConfigPath(afero.NewOsFs(), path)
		},
	}
}

// ValidateConfigPath checks that a config path exists and is a readable,
// non-empty file.
func ValidateConfigPath(afs afero.Fs, configPath string) error {
	if configPath == "" {
		return ErrMissingConfigPath
	}
	if _, err := util.GetFileContents(afs, configPath); err != nil {
		return fmt.Errorf("config file %s: %w", configPath, err)
	}
	return nil
}

func loadConfig(afs afero.Fs, configPath string) (*config.Config, error) {
	if err := ValidateConfigPath(afs, configPath); err != nil {
		return nil, err
	}
	return config.ReadFileConfig(afs, configPath)
}
