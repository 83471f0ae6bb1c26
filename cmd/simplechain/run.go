package main

import (
	"context"
	"fmt"
	"time"

	"github.com/i5heu/simplechain"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func (a *app) runCmd() *cobra.Command {
	var (
		interval time.Duration
		count    int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Append test blocks on a timer, then validate the chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("interval") {
				interval = a.conf.BlockInterval
			}
			if !cmd.Flags().Changed("count") {
				count = a.conf.BlockCount
			}
			if interval < 0 || count < 0 {
				return fmt.Errorf("interval and count must not be negative")
			}

			ctx := cmd.Context()
			c, err := a.openChain(ctx, false)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := a.appendTestBlocks(ctx, c, interval, count); err != nil {
				return err
			}
			if err := a.report(ctx, cmd, c); err != nil {
				return err
			}

			stats := c.Stats()
			a.log.WithFields(logrus.Fields{
				"reads":  stats.Reads,
				"writes": stats.Writes,
			}).Info("store stats")
			return nil
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "Time between two blocks (default from config, 10s)")
	cmd.Flags().IntVar(&count, "count", 0, "Number of blocks to append (default from config, 3)")
	return cmd
}

// appendTestBlocks adds "Test Block - i" for i in 1..count, one per tick.
func (a *app) appendTestBlocks(ctx context.Context, c *simplechain.Chain, interval time.Duration, count int) error {
	if count == 0 {
		return nil
	}

	ticker := time.NewTicker(max(interval, time.Millisecond))
	defer ticker.Stop()

	for i := 1; i <= count; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		block, err := c.AddBlock(ctx, fmt.Sprintf("Test Block - %d", i))
		if err != nil {
			return err
		}
		a.log.WithFields(logrus.Fields{
			"height": block.Height,
			"hash":   block.Hash,
		}).Info("block added")
	}
	return nil
}
