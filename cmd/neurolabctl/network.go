package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"neurolab/internal/neuro"
	"neurolab/pkg/neurolab"
)

func newInitCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the configured store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := opts.client(cmd)
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
			}()
			fmt.Fprintf(cmd.OutOrStdout(), "initialized store=%s\n", opts.cfg.Store.Kind)
			return nil
		},
	}
}

func newNewCommand(opts *rootOptions) *cobra.Command {
	var demo bool
	cmd := &cobra.Command{
		Use:   "new <file>",
		Short: "Create a network file",
		Long: `Create a network file using the configured dynamics.

With --demo the network holds two frozen inputs at 0.3 and 0.4 feeding one
output node through excitatory links.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client(cmd)
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
			}()

			if err := client.NewNetwork(demo); err != nil {
				return err
			}
			client.Net().SetParams(opts.cfg.Dynamics)
			if err := client.Save(args[0]); err != nil {
				return err
			}
			n := client.Net()
			fmt.Fprintf(cmd.OutOrStdout(), "created network=%s cells=%d edges=%d\n", args[0], n.LiveCount(), n.EdgeCount())
			return nil
		},
	}
	cmd.Flags().BoolVar(&demo, "demo", false, "build the two-input demonstration network")
	return cmd
}

func newInfoCommand(opts *rootOptions) *cobra.Command {
	var cells bool
	cmd := &cobra.Command{
		Use:   "info <file>",
		Short: "Describe a network file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client(cmd)
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
			}()

			info, err := client.Inspect(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "file=%s size=%s\n", info.Path, humanize.Bytes(uint64(info.Size)))
			if info.Legacy {
				fmt.Fprintf(out, "format=legacy cookie=%q\n", neuro.LegacyCookie)
			} else {
				fmt.Fprintf(out, "format=current automata_version=%d client_version=%d\n", info.Version.Automata, info.Version.Client)
			}
			fmt.Fprintf(out, "cells=%d free=%d edges=%d\n", info.Live, info.Free, info.Edges)
			p := info.Params
			fmt.Fprintf(out, "decay=%g link_learn_rate=%g node_learn_rate=%g node_forget_rate=%g learn_time=%g\n",
				p.Decay, p.LinkLearnRate, p.NodeLearnRate, p.NodeForgetRate, p.LearnTime)
			if cells {
				fmt.Fprint(out, info.Detail)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&cells, "cells", false, "list every live cell")
	return cmd
}

func newRunCommand(opts *rootOptions) *cobra.Command {
	var (
		steps         int
		snapshotEvery int
		runID         string
		noSave        bool
	)
	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Step a network and save the result",
		Long: `Step a network file and write it back.

An interrupt stops the run after the current step; the network is still
saved at that step boundary.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("steps") {
				steps = opts.cfg.Run.Steps
			}
			if !cmd.Flags().Changed("snapshot-every") {
				snapshotEvery = opts.cfg.Run.SnapshotEvery
			}
			if steps <= 0 {
				return fmt.Errorf("steps must be > 0")
			}

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
			summary, err := client.Run(cmd.Context(), neurolab.RunRequest{
				RunID:         runID,
				Steps:         steps,
				SnapshotEvery: snapshotEvery,
			})
			if err != nil {
				return err
			}
			if !noSave {
				if err := client.Save(""); err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "run_id=%s steps=%d cancelled=%t commits=%d active=%d mean_output=%.6f\n",
				summary.RunID, summary.StepsCompleted, summary.Cancelled, summary.Commits, summary.ActiveCells, summary.MeanOutput)
			if summary.ArtifactsDir != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "artifacts=%s\n", summary.ArtifactsDir)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 0, "steps to run (default from config)")
	cmd.Flags().IntVar(&snapshotEvery, "snapshot-every", 0, "store a snapshot every n steps")
	cmd.Flags().StringVar(&runID, "run-id", "", "run id (default: generated)")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "leave the network file unchanged")
	return cmd
}

func newDumpCommand(opts *rootOptions) *cobra.Command {
	var (
		reverse bool
		outPath string
	)
	cmd := &cobra.Command{
		Use:   "dump <file>",
		Short: "Write a network as a graphviz digraph",
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
			if outPath == "" {
				return client.Dump(cmd.OutOrStdout(), reverse)
			}

			f, err := os.Create(outPath)
			if err != nil {
				return err
			}
			if err := client.Dump(f, reverse); err != nil {
				_ = f.Close()
				return err
			}
			return f.Close()
		},
	}
	cmd.Flags().BoolVar(&reverse, "reverse", false, "draw edges from inputs to consumers")
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "write to file instead of stdout")
	return cmd
}
