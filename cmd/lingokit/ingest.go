package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/lingokit/lingokit/internal/ingest"
	"github.com/lingokit/lingokit/pkg/embeddings"
	"github.com/lingokit/lingokit/pkg/vectorstore"
)

type IngestFlags struct {
	ConfigFile string
	EnvFile    string

	File        string
	Title       string
	Subject     string
	Difficulty  string
	ContentType string
}

func NewIngestFlags() *IngestFlags {
	return &IngestFlags{EnvFile: ".env"}
}

func (f *IngestFlags) BindFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.ConfigFile, "config", f.ConfigFile, "Path to a YAML config file (optional, env overrides)")
	flagSet.StringVar(&f.EnvFile, "env-file", f.EnvFile, "Path to a dotenv file loaded before reading config")
	flagSet.StringVar(&f.File, "file", "", "Markdown or text file to ingest (required)")
	flagSet.StringVar(&f.Title, "title", "", "Document title (default: file name)")
	flagSet.StringVar(&f.Subject, "subject", "", "Subject tag (default: general)")
	flagSet.StringVar(&f.Difficulty, "difficulty", "", "Difficulty tier (beginner,intermediate,advanced; default: detected per section)")
	flagSet.StringVar(&f.ContentType, "content-type", "", "Content type: markdown or text (default: from file extension)")
}

func NewIngestCommand() *cobra.Command {
	f := NewIngestFlags()

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Embed a teaching document into the vector store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(f)
		},
	}
	f.BindFlags(cmd.Flags())
	if err := cmd.MarkFlagRequired("file"); err != nil {
		panic(err)
	}
	return cmd
}

func runIngest(f *IngestFlags) error {
	cfg, err := loadConfig(f.EnvFile, f.ConfigFile)
	if err != nil {
		return err
	}

	content, err := os.ReadFile(f.File)
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}

	title := f.Title
	if title == "" {
		base := filepath.Base(f.File)
		title = strings.TrimSuffix(base, filepath.Ext(base))
	}
	contentType := f.ContentType
	if contentType == "" && isMarkdownFile(f.File) {
		contentType = "markdown"
	}

	vstore, err := vectorstore.New(cfg.VectorStoreConfig())
	if err != nil {
		return fmt.Errorf("connect vector store: %w", err)
	}
	defer vstore.Close()

	embedder, err := embeddings.New(cfg.EmbeddingsConfig())
	if err != nil {
		return fmt.Errorf("init embeddings: %w", err)
	}
	defer embedder.Close()

	pipeline := ingest.NewPipeline(vstore, embedder, cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	res, err := pipeline.Ingest(ctx, ingest.Request{
		Title:           title,
		Content:         string(content),
		Subject:         f.Subject,
		DifficultyLevel: f.Difficulty,
		ContentType:     contentType,
	})
	if err != nil {
		return fmt.Errorf("ingest document: %w", err)
	}

	log.WithFields(log.Fields{
		"document_id": res.DocumentID,
		"chunks":      res.ChunksStored,
		"subject":     res.Subject,
		"difficulty":  res.DifficultyLevel,
	}).Info("document ingested")
	return nil
}

func isMarkdownFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return true
	}
	return false
}
