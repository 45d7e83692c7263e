package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/occurrences/internal/config"
	occsync "github.com/alfredjeanlab/occurrences/internal/sync"
)

var exportCmd = &cobra.Command{
	Use:     "export",
	Short:   "Export occurrences as JSONL to stdout, a file or S3",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		ecfg := a.cfg.Export
		if cmd.Flags().Changed("interval") {
			ecfg.Interval, _ = cmd.Flags().GetDuration("interval")
		}
		if cmd.Flags().Changed("file") {
			ecfg.File, _ = cmd.Flags().GetString("file")
		}
		if cmd.Flags().Changed("s3-bucket") {
			ecfg.S3Bucket, _ = cmd.Flags().GetString("s3-bucket")
		}

		dests, err := exportDestinations(cmd, ecfg)
		if err != nil {
			return err
		}

		sched := occsync.NewScheduler(a.db, dests, ecfg.Interval, a.logger)
		if ecfg.Interval <= 0 {
			return sched.RunOnce(cmd.Context())
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sched.Start(ctx)
		a.logger.Info("export scheduler started", "interval", ecfg.Interval)
		<-ctx.Done()
		sched.Stop()
		return nil
	},
}

func exportDestinations(cmd *cobra.Command, ecfg config.Export) ([]occsync.Destination, error) {
	var dests []occsync.Destination
	if ecfg.S3Bucket != "" {
		s3Dest, err := occsync.NewS3Destination(context.Background(), ecfg)
		if err != nil {
			return nil, err
		}
		dests = append(dests, s3Dest)
	}
	switch {
	case ecfg.File != "" && ecfg.File != "-":
		dests = append(dests, &occsync.FileDestination{Path: ecfg.File})
	case ecfg.File == "-" || len(dests) == 0:
		dests = append(dests, &occsync.WriterDestination{W: cmd.OutOrStdout()})
	}
	return dests, nil
}

func init() {
	exportCmd.Flags().Duration("interval", 0, "export repeatedly at this interval until interrupted")
	exportCmd.Flags().String("file", "", `write to this file ("-" for stdout)`)
	exportCmd.Flags().String("s3-bucket", "", "upload to this S3 bucket")
}
