package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/bstardust/exif-geotag/internal/config"
	"github.com/bstardust/exif-geotag/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app carries state shared by the commands of one invocation
type app struct {
	v          *viper.Viper
	configFile string
	cfg        *config.Config
	out        io.Writer
}

func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interruption signals
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signalCh
		logger.Info("Received interrupt signal, shutting down...")
		cancel()
	}()

	rootCmd := NewRootCommand(os.Stdout)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
}

// NewRootCommand builds the command tree. Tag listings are written to out.
func NewRootCommand(out io.Writer) *cobra.Command {
	a := &app{v: viper.New(), out: out}

	rootCmd := &cobra.Command{
		Use:   "exif-geotag",
		Short: "Embed camera and GPS metadata from a CSV file into a JPEG's EXIF",
		Long: `Reads key,value metadata from a CSV file, writes it into a fresh EXIF
structure (primary, Exif and GPS IFDs) of a re-encoded JPEG and prints the
tags read back from the result. Without a subcommand it behaves like "tag".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.v, a.configFile)
			if err != nil {
				return err
			}
			a.cfg = cfg
			logger.SetLevel(cfg.LogLevel)
			logger.Debug("Loaded configuration (base dir %q, numeric policy %s, coordinate check %s)",
				cfg.BaseDir, cfg.Encode.NumericPolicy, cfg.Encode.CoordinateCheck)
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&a.configFile, "config", "", "Config file (default ./exif-geotag.yaml if present)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	a.v.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	tagCmd := newTagCommand(a)
	rootCmd.Flags().AddFlagSet(tagCmd.Flags())
	rootCmd.RunE = tagCmd.RunE

	rootCmd.AddCommand(tagCmd)
	rootCmd.AddCommand(newViewCommand(a))

	return rootCmd
}
