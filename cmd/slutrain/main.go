// Command slutrain trains the direct speech-to-semantics model.
//
// Usage:
//
//	slutrain HPARAMS.yaml [--key=value ...]
//
// Every override is applied on top of the hyperparameter file; dotted keys
// reach nested sections, e.g. --dataloader_opts.batch_size=4.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:                "slutrain HPARAMS.yaml [--key=value ...]",
	Short:              "Train the wav2vec2 + seq2seq SLU recipe",
	DisableFlagParsing: true,
	SilenceUsage:       true,
	SilenceErrors:      true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 || args[0] == "-h" || args[0] == "--help" {
			return cmd.Help()
		}
		return run(cmd.Context(), args[0], args[1:])
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
