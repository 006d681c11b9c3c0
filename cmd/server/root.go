package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/obiente/interviewd/internal/config"
	"github.com/obiente/interviewd/internal/deepgram"
	"github.com/obiente/interviewd/internal/extract"
	"github.com/obiente/interviewd/internal/llm"
	"github.com/obiente/interviewd/internal/prompts"
	"github.com/obiente/interviewd/internal/relay"
	"github.com/obiente/interviewd/internal/store"
)

var rootCmd = &cobra.Command{
	Use:          "interviewd",
	Short:        "Live interview transcription and knowledge extraction",
	Long:         `interviewd relays live interview audio to a speech-recognition provider, stores the diarized transcript, and derives keynotes, deduplicated follow-up questions and a final summary from it.`,
	SilenceUsage: true,
	Version:      version,
}

// openStore connects to DATABASE_URL, creating the schema when migrate
// is set.
func openStore(cfg config.Config, migrate bool) (*store.Store, error) {
	st, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if migrate {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		log.Info().Msg("schema up to date")
	}
	return st, nil
}

func newOrchestrator(cfg config.Config, st *store.Store) (*extract.Orchestrator, error) {
	p, err := prompts.Load(cfg.PromptsPath)
	if err != nil {
		return nil, err
	}
	client := llm.New(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIEmbeddingModel, cfg.LLMTimeoutSec)
	return extract.New(st, client, client, p, extract.Options{
		Threshold:   cfg.QuestionSimilarityThreshold,
		ArtifactDir: cfg.KeynotesArtifactDir,
	}), nil
}

func deepgramDialer(cfg config.Config) relay.Dialer {
	opts := deepgram.Options{
		URL:        cfg.DeepgramURL,
		APIKey:     cfg.DeepgramAPIKey,
		Model:      cfg.DeepgramModel,
		Language:   cfg.DeepgramLanguage,
		Encoding:   cfg.DeepgramEncoding,
		SampleRate: cfg.DeepgramSampleRate,
		Channels:   cfg.DeepgramChannels,
	}
	return func(ctx context.Context) (relay.Provider, error) {
		c, err := deepgram.Dial(ctx, opts)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}
