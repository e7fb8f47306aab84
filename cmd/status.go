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
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pagelate/pagelate/internal/store"
)

var statusBatch string

var statusCmd = &cobra.Command{
	Use:   "status [task-id]",
	Short: "Show task or batch status",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newStore()
		if err != nil {
			return err
		}
		defer s.Close()

		ctx := cmd.Context()
		switch {
		case len(args) == 1:
			return printTask(ctx, s, args[0])
		case statusBatch != "":
			return printBatch(ctx, s, statusBatch)
		default:
			return fmt.Errorf("provide a task id or --batch")
		}
	},
}

func printTask(ctx context.Context, s *store.Store, id string) error {
	task, err := s.GetTask(ctx, id)
	if err != nil {
		return err
	}

	fmt.Printf("Task:     %s\n", task.ID)
	fmt.Printf("Batch:    %s\n", task.BatchID)
	fmt.Printf("Kind:     %s\n", task.Kind)
	fmt.Printf("Language: %s\n", task.TargetLang)
	fmt.Printf("Status:   %s\n", task.Status)
	if task.ErrorMessage != "" {
		fmt.Printf("Error:    %s\n", task.ErrorMessage)
	}

	versions, err := s.ListVersions(ctx, task.ID)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		return nil
	}

	fmt.Println("\nVersions:")
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "  #\tSCORE\tACTIVE\tARTIFACT")
	for _, v := range versions {
		score := "-"
		if v.Score != nil {
			score = fmt.Sprintf("%d", *v.Score)
		}
		active := ""
		if v.IsActive {
			active = "*"
		}
		fmt.Fprintf(w, "  %d\t%s\t%s\t%s\n", v.VersionNumber, score, active, v.ArtifactURL)
	}
	return w.Flush()
}

func printBatch(ctx context.Context, s *store.Store, batchID string) error {
	tasks, err := s.BatchTasks(ctx, batchID)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		return fmt.Errorf("no tasks in batch %s", batchID)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TASK\tKIND\tLANG\tSTATUS\tSCORE")
	for _, t := range tasks {
		score := "-"
		if v, err := s.ActiveVersion(ctx, t.ID); err == nil && v != nil && v.Score != nil {
			score = fmt.Sprintf("%d", *v.Score)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Kind, t.TargetLang, t.Status, score)
	}
	return w.Flush()
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVar(&statusBatch, "batch", "", "show all tasks in a batch")
}
