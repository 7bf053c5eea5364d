package main

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	// Vector store backends register themselves on import.
	_ "github.com/lingokit/lingokit/pkg/vectorstore/firestore"
	_ "github.com/lingokit/lingokit/pkg/vectorstore/memory"
	_ "github.com/lingokit/lingokit/pkg/vectorstore/pgvector"
)

var logLevel = "info"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "lingokit",
	Short: "Adaptive English tutoring service",
	Long: `Lingokit serves an adaptive English tutoring chat API: active sessions
live in Redis, ended sessions are archived to Postgres, teaching content is
retrieved from a vector store, and replies come from LearnLM with an
OpenRouter fallback.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, err := log.ParseLevel(logLevel)
		if err != nil {
			log.WithError(err).Fatal("cannot parse log-level")
		}
		log.SetLevel(level)
		log.Debug("debug logging enabled")
	},
}

func main() {
	// Millisecond precision on log timestamps, useful for debugging latency.
	formatter := new(log.TextFormatter)
	formatter.TimestampFormat = "2006-01-02T15:04:05.999Z07:00"
	formatter.FullTimestamp = true
	log.SetFormatter(formatter)

	rootCmd.AddCommand(
		NewServeCommand(),
		NewIngestCommand(),
		NewReplCommand(),
		NewVersionCommand(),
	)

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"Log level (trace,debug,info,warn,error) (default info)")

	err := rootCmd.Execute()
	if err != nil {
		log.WithError(err).Fatal("could not execute root command")
	}
}
