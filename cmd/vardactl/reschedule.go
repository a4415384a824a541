package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newRescheduleTaskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reschedule-task <task-id>",
		Short: "Return a failed or stale task to waiting",
		Long:  "Clears progress and error on the named task and returns it to waiting, the manual-retry path for a task the scheduler gave up on.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Tasks().Reschedule(context.Background(), args[0]); err != nil {
				return err
			}
			fmt.Printf("task %s rescheduled\n", args[0])
			return nil
		},
	}
}
