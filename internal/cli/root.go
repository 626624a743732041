package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xela07ax/demonlist-history/internal/connectors"
	"github.com/xela07ax/demonlist-history/internal/domain"
	"github.com/xela07ax/demonlist-history/internal/engine"
)

// Execute запускает CLI и возвращает код выхода.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// options хранит значения глобальных флагов.
type options struct {
	baseURL          string
	extendedListSize int
	fixture          string
	output           string
	timeout          time.Duration
	verbose          bool
}

// source: откуда CLI берет журналы и размеры списка.
type source struct {
	movements engine.MovementSource
	listInfo  func(ctx context.Context) (domain.ListInfo, error)
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "historyctl",
		Short:         "Demon position history from the demonlist audit log",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("base-url") {
				if v := os.Getenv("HISTORYCTL_BASE_URL"); v != "" {
					opts.baseURL = v
				}
			}
			if opts.output != "table" && opts.output != "json" {
				return fmt.Errorf("unsupported output format %q: use 'table' or 'json'", opts.output)
			}
			if opts.extendedListSize < 0 {
				return fmt.Errorf("--extended-list-size must not be negative, got %d", opts.extendedListSize)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.baseURL, "base-url", "https://pointercrate.com", "Demonlist API base URL")
	rootCmd.PersistentFlags().IntVar(&opts.extendedListSize, "extended-list-size", 0, "Extended list size (0 = ask the API)")
	rootCmd.PersistentFlags().StringVar(&opts.fixture, "fixture", "", "Read movement logs from a JSON fixture instead of the API")
	rootCmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "table", "Output format (table, json)")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 15*time.Second, "Request timeout")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log upstream calls to stderr")

	rootCmd.AddCommand(
		newHistoryCmd(opts),
		newChartCmd(opts),
	)
	return rootCmd
}

func (o *options) logger() *zap.Logger {
	if !o.verbose {
		return zap.NewNop()
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func (o *options) source() (*source, error) {
	if o.fixture != "" {
		fixture, err := connectors.LoadFixtureFile(o.fixture)
		if err != nil {
			return nil, err
		}
		return &source{
			movements: fixture,
			listInfo: func(context.Context) (domain.ListInfo, error) {
				return domain.ListInfo{ListSize: domain.DefaultListSize, ExtendedListSize: domain.DefaultExtendedListSize}, nil
			},
		}, nil
	}

	logger := o.logger()
	client := connectors.NewPointercrateClient(o.baseURL, o.timeout, logger)
	cfg := engine.DefaultReliabilityConfig()
	cfg.CallTimeout = o.timeout
	return &source{
		movements: engine.NewReliableSource(client, cfg, nil, logger),
		listInfo:  client.ListInfo,
	}, nil
}

// resolveExtendedListSize: явный флаг важнее ответа API.
func (o *options) resolveExtendedListSize(ctx context.Context, src *source) (int, error) {
	if o.extendedListSize > 0 {
		return o.extendedListSize, nil
	}
	info, err := src.listInfo(ctx)
	if err != nil {
		return 0, fmt.Errorf("list information: %w", err)
	}
	return info.ExtendedListSize, nil
}

func parseDemonID(arg string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", domain.ErrInvalidDemonID, arg)
	}
	return id, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
