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
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pagelate/pagelate/internal/pipeline"
)

var (
	pageInput  string
	pageOutput string
	pageLang   string
)

var pageCmd = &cobra.Command{
	Use:   "page",
	Short: "Translate one HTML page",
	Long: `Translate a marketing HTML page into the target language.

The page is decomposed into translation units, translated in batches,
reassembled, proofread, and scored against the quality gate. The input
may be a local file or an HTTP(S) URL.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if pageInput == pageOutput {
			return fmt.Errorf("input and output cannot be the same")
		}

		client, err := newClient()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		sourceHTML, err := pipeline.LoadSource(ctx, http.DefaultClient, pageInput)
		if err != nil {
			return err
		}

		result, err := newPipeline(client).TranslateHTML(ctx, sourceHTML, pageLang)
		if err != nil {
			return fmt.Errorf("translation failed: %w", err)
		}

		if dir := filepath.Dir(pageOutput); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}
		if err := os.WriteFile(pageOutput, []byte(result.HTML), 0644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}

		if result.Verdict != nil {
			fmt.Fprintf(os.Stderr, "Quality score: %d (passed: %v)\n",
				result.Verdict.Analysis.Score, result.Verdict.Passed)
		}
		if len(result.Failed) > 0 {
			fmt.Fprintf(os.Stderr, "Untranslated units: %d (source text kept)\n", len(result.Failed))
		}
		fmt.Fprintf(os.Stderr, "Translated page written to %s\n", pageOutput)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pageCmd)

	pageCmd.Flags().StringVarP(&pageInput, "input", "i", "", "input HTML file or URL (required)")
	pageCmd.Flags().StringVarP(&pageOutput, "output", "o", "", "output HTML file (required)")
	pageCmd.Flags().StringVarP(&pageLang, "lang", "l", "", "target language, e.g. de or pt-BR (required)")

	pageCmd.MarkFlagRequired("input")
	pageCmd.MarkFlagRequired("output")
	pageCmd.MarkFlagRequired("lang")
}
