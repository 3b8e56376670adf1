// File: cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"github.com/jarylc/go-recaptchabuster/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewRootCommand builds the command tree around its own viper instance, so every call starts from defaults
func NewRootCommand() *cobra.Command {
	v := viper.New()
	config.SetDefaults(v)
	config.BindEnv(v)

	var cfgFile string
	rootCmd := &cobra.Command{
		Use:           "recaptchabuster",
		Short:         "Solve reCAPTCHA v2 widgets in a real browser with the Buster extension",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return readConfig(v, cfgFile)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./recaptchabuster.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(newSolveCmd(v))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// Execute runs the command tree and prints the error, if any, to stderr
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", err)
	}
	return err
}

// readConfig merges the config file, if any, into v. A missing default config file is not an error.
func readConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("recaptchabuster")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}
