package cmd

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"

	"github.com/xayone/riskd/config"
)

var ValidateConfigCommand = &cli.Command{
	Name:      "validate",
	Usage:     "validate a configuration file",
	UsageText: "validate [--config FILE]",
	Args:      false,
	Flags: []cli.Flag{
		ConfigFlag(false),
	},
	Action: func(cCtx *cli.Context) error {
		if cCtx.String("config") == "" {
			return ErrMissingConfigPath
		}
		if cCtx.NArg() > 0 {
			return ErrTooManyArguments
		}

		_, err := RunValidateConfigCommand(afero.NewOsFs(), cCtx.String("config"))
		return err
	},
}

func RunValidateConfigCommand(afs afero.Fs, configPath string) (*config.Config, error) {
	cfg, err := loadConfig(afs, configPath)
	if err != nil {
		fmt.Printf("\n\t[!] Configuration file is not valid\n\n")
		return nil, err
	}

	fmt.Printf("\n\t[✓] Configuration file is valid\n\n")
	return cfg, nil
}
