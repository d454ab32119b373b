package main

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nadmax/reportd/internal/config"
	"github.com/nadmax/reportd/internal/reportdef"
)

var (
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "reportd [definitions-file]",
		Short: "Runs database and WMI reports on a schedule and e-mails the results.",
		Long: `Runs database and WMI reports on a schedule and e-mails the results.

Reports are read from a YAML (.yaml, .yml) or legacy XML (.xml) definitions
file, which is reloaded whenever it changes.`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE:         runRoot,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"daemon config file (default is reportd.yaml in . or $HOME/.config/reportd)")
	config.RegisterFlags(rootCmd.Flags())
}

func runRoot(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	if len(args) == 1 {
		v.Set("definitions", args[0])
	}

	opts, err := config.Load(v, cmd.Flags(), cfgFile)
	if err != nil {
		return err
	}
	if err := opts.Validate(); err != nil {
		return err
	}

	if opts.PrintingExample() {
		text, err := reportdef.Example(reportdef.Format(strings.ToLower(opts.ExampleFormat)), opts.ExtendedExample)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), text)
		return err
	}

	return run(cmd.Context(), opts)
}
