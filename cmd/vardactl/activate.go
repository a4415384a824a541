package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newActivateSampleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activate-sample <sample-id>",
		Short: "Activate a sample for inclusion in frequency queries",
		Long:  "Runs the same guarded Activate transition the HTTP surface's POST /samples/:id/activate calls, rejecting a sample with a pending task or no imported data.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			mgr := newManagerForStore(db)
			if err := mgr.Activate(context.Background(), args[0]); err != nil {
				return err
			}
			fmt.Printf("sample %s activated\n", args[0])
			return nil
		},
	}
}

func newDeactivateSampleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate-sample <sample-id>",
		Short: "Deactivate a sample",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			mgr := newManagerForStore(db)
			if err := mgr.Deactivate(context.Background(), args[0]); err != nil {
				return err
			}
			fmt.Printf("sample %s deactivated\n", args[0])
			return nil
		},
	}
}
