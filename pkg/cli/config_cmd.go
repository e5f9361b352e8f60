package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/getmockd/wshub/pkg/config"
)

var (
	configPrintFormat string
	configPrintFile   string
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and validate configuration files",
}

var configPrintCmd = &cobra.Command{
	Use:   "print",
	Short: "Print the effective configuration (defaults merged with --config)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Default()
		if configPrintFile != "" {
			loaded, err := config.LoadFromFile(configPrintFile)
			if err != nil {
				return err
			}
			cfg = loaded
		}

		format := config.Format(configPrintFormat)
		if jsonOutput {
			format = config.FormatJSON
		}
		data, err := config.Marshal(cfg, format)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

// ValidateResult is the --json output of config validate.
type ValidateResult struct {
	File   string   `json:"file"`
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

var configValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check a configuration file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res := ValidateResult{File: args[0], Valid: true}

		cfg, err := config.LoadFromFile(args[0])
		if err == nil {
			err = cfg.Validate()
		}
		if err != nil {
			res.Valid = false
			var verrs config.ValidationErrors
			if errors.As(err, &verrs) {
				for _, e := range verrs {
					res.Errors = append(res.Errors, e.Error())
				}
			} else {
				res.Errors = []string{err.Error()}
			}
		}

		if perr := printResult(cmd, res, func() {
			if res.Valid {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", res.File)
				return
			}
			for _, e := range res.Errors {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", res.File, e)
			}
		}); perr != nil {
			return perr
		}
		if !res.Valid {
			return fmt.Errorf("%s is not valid", res.File)
		}
		return nil
	},
}

func init() {
	configPrintCmd.Flags().StringVarP(&configPrintFormat, "format", "f", string(config.FormatYAML), "Output format (yaml, json)")
	configPrintCmd.Flags().StringVarP(&configPrintFile, "config", "c", "", "Configuration file to merge over the defaults")

	configCmd.AddCommand(configPrintCmd, configValidateCmd)
	rootCmd.AddCommand(configCmd)
}
