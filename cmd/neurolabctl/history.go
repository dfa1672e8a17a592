package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"neurolab/pkg/neurolab"
)

func newSnapshotCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Save, list and restore network snapshots",
	}
	cmd.AddCommand(newSnapshotSaveCommand(opts))
	cmd.AddCommand(newSnapshotListCommand(opts))
	cmd.AddCommand(newSnapshotRestoreCommand(opts))
	return cmd
}

func newSnapshotSaveCommand(opts *rootOptions) *cobra.Command {
	var label string
	cmd := &cobra.Command{
		Use:   "save <file>",
		Short: "Store a snapshot of a network file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client(cmd)
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
			}()

			if err := client.Open(args[0]); err != nil {
				return err
			}
			if label == "" {
				label = args[0]
			}
			snap, err := client.Snapshot(cmd.Context(), label)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "snapshot_id=%s cells=%d edges=%d bytes=%d\n", snap.ID, snap.Cells, snap.Edges, len(snap.Payload))
			return nil
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "snapshot label (default: file path)")
	return cmd
}

func newSnapshotListCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := opts.client(cmd)
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
			}()

			snaps, err := client.Snapshots(cmd.Context())
			if err != nil {
				return err
			}
			now := time.Now()
			for _, snap := range snaps {
				fmt.Fprintf(cmd.OutOrStdout(), "snapshot_id=%s label=%q run_id=%s step=%d cells=%d created=%s\n",
					snap.ID, snap.Label, snap.RunID, snap.Step, snap.Cells, humanize.RelTime(snap.CreatedAt, now, "ago", "from now"))
			}
			return nil
		},
	}
}

func newSnapshotRestoreCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <snapshot-id> <file>",
		Short: "Write a stored snapshot to a network file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client(cmd)
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
			}()

			if err := client.Restore(cmd.Context(), args[0]); err != nil {
				return err
			}
			if err := client.Save(args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored snapshot_id=%s network=%s cells=%d\n", args[0], args[1], client.Net().LiveCount())
			return nil
		},
	}
}

func newRunsCommand(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return fmt.Errorf("limit must be > 0")
			}
			client, err := opts.client(cmd)
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
			}()

			runs, err := client.Runs(cmd.Context(), neurolab.RunsRequest{Limit: limit})
			if err != nil {
				return err
			}
			now := time.Now()
			for _, run := range runs {
				fmt.Fprintf(cmd.OutOrStdout(), "run_id=%s network=%s steps=%d/%d cancelled=%t commits=%d workers=%d started=%s\n",
					run.RunID, run.NetworkPath, run.StepsCompleted, run.StepsRequested, run.Cancelled,
					run.CommitsTotal, run.Workers, humanize.RelTime(run.StartedAt, now, "ago", "from now"))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")
	return cmd
}

func newExportCommand(opts *rootOptions) *cobra.Command {
	var (
		runID  string
		latest bool
		outDir string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Copy run artifacts to an export directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := opts.client(cmd)
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
			}()

			exported, err := client.Export(cmd.Context(), neurolab.ExportRequest{
				RunID:  runID,
				Latest: latest,
				OutDir: outDir,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported run_id=%s dir=%s\n", exported.RunID, exported.Directory)
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "run to export")
	cmd.Flags().BoolVar(&latest, "latest", false, "export the most recent run")
	cmd.Flags().StringVar(&outDir, "out", "exports", "export directory")
	return cmd
}
