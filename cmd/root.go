/*
Copyright © 2025 Pagelate Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pagelate/pagelate/internal/config"
)

var version = "0.3.0"

var (
	cfgFile  string
	settings *config.Settings
	logger   *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "pagelate",
	Short: "Quality-gated page and ad translation",
	Long: `Pagelate translates marketing HTML pages and regenerates ad images
in new languages, scoring every result against a quality gate and
retrying with corrective feedback until it passes.

Use "pagelate page --help" for page translation options.
Use "pagelate images --help" for image batch options.`,
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		settings, err = config.Load(viper.GetViper(), cfgFile)
		if err != nil {
			return err
		}

		level := slog.LevelInfo
		if settings.Verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default pagelate.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable debug logging")
	rootCmd.PersistentFlags().String("api-key", "", "LLM gateway API key")
	rootCmd.PersistentFlags().String("db", "pagelate.db", "task database path")

	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("api_key", rootCmd.PersistentFlags().Lookup("api-key"))
	viper.BindPFlag("db_path", rootCmd.PersistentFlags().Lookup("db"))
}
