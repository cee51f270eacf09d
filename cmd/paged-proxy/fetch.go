package main

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/Sternrassler/paged-client/pkg/fetch"
	"github.com/Sternrassler/paged-client/pkg/pagination"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

const concurrencyFlag = "concurrency"

func newFetchCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch URL...",
		Short: "Dereference page chains and print their records as NDJSON",
		Long: `Dereference every URL concurrently and print the records of each chain as
NDJSON, one chain after the other in argument order.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := readConfig(v)
			if err != nil {
				return err
			}
			setupLogging(cfg, cmd)

			ctx := cmd.Context()
			c, _, cleanup, err := newClient(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			return runFetch(ctx, c, cfg, args, v.GetInt(concurrencyFlag), cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.Int(concurrencyFlag, 4, "chains dereferenced at the same time")
	mustBindPFlag(v, concurrencyFlag, flags.Lookup(concurrencyFlag))

	return cmd
}

// runFetch dereferences urls with at most concurrency walks in flight and
// writes the records of each chain to out in argument order. The first
// failing chain cancels the others.
func runFetch(ctx context.Context, getter fetch.Getter, cfg Config, urls []string, concurrency int, out io.Writer) error {
	results := make([][][]byte, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}

	for i, url := range urls {
		g.Go(func() error {
			res, err := dereference(gctx, getter, cfg, cfg.Format, cfg.ItemsPath, url)
			if err != nil {
				return fmt.Errorf("%s: %w", url, err)
			}
			lines, err := pagination.Collect(gctx, res.Data)
			if err != nil {
				return fmt.Errorf("%s: %w", url, err)
			}
			results[i] = lines
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	w := bufio.NewWriter(out)
	for _, lines := range results {
		for _, line := range lines {
			w.Write(line)
			w.WriteByte('\n')
		}
	}
	return w.Flush()
}
