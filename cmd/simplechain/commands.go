package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/i5heu/simplechain"
	"github.com/i5heu/simplechain/internal/config"
	"github.com/i5heu/simplechain/pkg/logging"
	"github.com/i5heu/simplechain/pkg/types"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var errInvalidChain = errors.New("chain is invalid")

// app carries the global flags and what is built from them.
type app struct {
	configPath string
	dataPath   string
	backend    string
	logLevel   string
	logJSON    bool

	conf config.Config
	log  *logrus.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "simplechain",
		Short: "A private chain of hash linked blocks",
		Long: `simplechain keeps an append-only chain of blocks in an embedded
key-value store. Every block carries the SHA-256 hash of its predecessor,
so tampering with any stored block is found by validate.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "Path to a YAML config file")
	flags.StringVar(&a.dataPath, "data", "", "Data directory (default "+config.DefaultDataPath+")")
	flags.StringVar(&a.backend, "backend", "", "Store backend: badger or leveldb")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level (default "+config.DefaultLogLevel+")")
	flags.BoolVar(&a.logJSON, "log-json", false, "Log as JSON")

	rootCmd.AddCommand(
		a.runCmd(),
		a.addCmd(),
		a.getCmd(),
		a.heightCmd(),
		a.validateCmd(),
		a.exportCmd(),
		a.importCmd(),
	)
	return rootCmd
}

// setup merges config file and flags. Flags win.
func (a *app) setup(cmd *cobra.Command) error {
	conf := config.Default()
	if a.configPath != "" {
		loaded, err := config.Load(a.configPath)
		if err != nil {
			return err
		}
		conf = loaded
	}

	if a.dataPath != "" {
		conf.DataPath = a.dataPath
	}
	if a.backend != "" {
		conf.Backend = a.backend
	}
	if a.logLevel != "" {
		conf.LogLevel = a.logLevel
	}
	if cmd.Flags().Changed("log-json") {
		conf.LogJSON = a.logJSON
	}
	if err := conf.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{
		Level:  conf.LogLevel,
		JSON:   conf.LogJSON,
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}

	a.conf = conf
	a.log = logger
	return nil
}

func (a *app) openChain(ctx context.Context, skipGenesis bool) (*simplechain.Chain, error) {
	c, err := simplechain.New(simplechain.Config{
		Paths:         []string{a.conf.DataPath},
		Backend:       simplechain.Backend(a.conf.Backend),
		MinimumFreeGB: a.conf.MinimumFreeGB,
		AsyncWrites:   a.conf.AsyncWrites,
		SkipGenesis:   skipGenesis,
		Logger:        a.log,
	})
	if err != nil {
		return nil, err
	}
	if err := c.Start(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (a *app) addCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add [body]",
		Short: "Append a block with the given body",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := a.openChain(ctx, false)
			if err != nil {
				return err
			}
			defer c.Close()

			block, err := c.AddBlock(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), block.String())
			return nil
		},
	}
}

func (a *app) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get [height]",
		Short: "Print the block at a height",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			height, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid height %q: %w", args[0], err)
			}

			ctx := cmd.Context()
			c, err := a.openChain(ctx, false)
			if err != nil {
				return err
			}
			defer c.Close()

			block, err := c.GetBlock(ctx, types.Height(height))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), block.String())
			return nil
		},
	}
}

func (a *app) heightCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "height",
		Short: "Print the number of blocks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := a.openChain(ctx, false)
			if err != nil {
				return err
			}
			defer c.Close()

			height, err := c.ChainHeight(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), height)
			return nil
		},
	}
}

func (a *app) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check every block and link, exits non-zero on findings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := a.openChain(ctx, false)
			if err != nil {
				return err
			}
			defer c.Close()

			return a.report(ctx, cmd, c)
		},
	}
}

// report prints the validation outcome. It returns errInvalidChain when
// there are findings.
func (a *app) report(ctx context.Context, cmd *cobra.Command, c *simplechain.Chain) error {
	report, err := c.ValidateChainReport(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if report.Valid() {
		fmt.Fprintf(out, "No errors detected in %d blocks\n", report.ChainHeight)
		return nil
	}

	for _, f := range report.Findings {
		a.log.WithFields(logrus.Fields{
			"height": f.Height,
			"kind":   f.Kind.String(),
		}).Warn("invalid block")
	}
	fmt.Fprintf(out, "Block errors = %d\n", len(report.InvalidHeights()))
	fmt.Fprintf(out, "Blocks: %v\n", report.InvalidHeights())
	return errInvalidChain
}

func (a *app) exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Write a compressed backup of the chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := a.openChain(ctx, false)
			if err != nil {
				return err
			}
			defer c.Close()

			f, err := os.Create(args[0])
			if err != nil {
				return fmt.Errorf("create backup: %w", err)
			}

			n, err := c.Export(ctx, f)
			if closeErr := f.Close(); err == nil {
				err = closeErr
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d blocks to %s\n", n, args[0])
			return nil
		},
	}
}

func (a *app) importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import [file]",
		Short: "Append the blocks of a backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open backup: %w", err)
			}
			defer f.Close()

			// the genesis comes from the backup
			ctx := cmd.Context()
			c, err := a.openChain(ctx, true)
			if err != nil {
				return err
			}
			defer c.Close()

			n, err := c.Import(ctx, f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d blocks from %s\n", n, args[0])
			return nil
		},
	}
}
