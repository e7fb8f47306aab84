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
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pagelate/pagelate/internal/store"
)

var (
	imageSources []string
	imageLangs   []string
	imageRatios  []string
	imageWait    bool
)

var imagesCmd = &cobra.Command{
	Use:   "images",
	Short: "Enqueue an ad image regeneration batch",
	Long: `Enqueue one regeneration task per source image, target language,
and aspect ratio. Tasks are picked up by "pagelate worker"; each task
regenerates the ad with translated text, scores the result, and retries
with corrective feedback until it passes the quality gate or the
version ceiling is reached.

Example:
  pagelate images --source ad.png --langs de,fr --ratios 1:1,9:16`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newStore()
		if err != nil {
			return err
		}
		defer s.Close()

		ctx := cmd.Context()
		batchID := uuid.NewString()
		count := 0
		for _, src := range imageSources {
			for _, lang := range imageLangs {
				for _, ratio := range imageRatios {
					task := &store.Task{
						ID:          uuid.NewString(),
						BatchID:     batchID,
						Kind:        store.KindImage,
						SourceRef:   src,
						TargetLang:  lang,
						AspectRatio: ratio,
					}
					if err := s.CreateTask(ctx, task); err != nil {
						return fmt.Errorf("failed to enqueue task: %w", err)
					}
					count++
				}
			}
		}

		fmt.Fprintf(os.Stderr, "Enqueued %d tasks\n", count)
		fmt.Println(batchID)

		if imageWait {
			client, err := newClient()
			if err != nil {
				return err
			}
			return newQueue(client, s).RunOnce(ctx)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(imagesCmd)

	imagesCmd.Flags().StringSliceVar(&imageSources, "source", nil, "source image URL or path (repeatable)")
	imagesCmd.Flags().StringSliceVar(&imageLangs, "langs", nil, "target languages (required)")
	imagesCmd.Flags().StringSliceVar(&imageRatios, "ratios", []string{"1:1"}, "aspect ratios")
	imagesCmd.Flags().BoolVar(&imageWait, "wait", false, "process the batch in this process instead of a worker")

	imagesCmd.MarkFlagRequired("source")
	imagesCmd.MarkFlagRequired("langs")
}
