package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/obiente/interviewd/internal/audio"
	"github.com/obiente/interviewd/internal/config"
	serverhttp "github.com/obiente/interviewd/internal/http"
	"github.com/obiente/interviewd/internal/relay"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the live transcription socket",
	RunE:  runServe,
}

var serveAddr string

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides INTERVIEWD_ADDR)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if serveAddr != "" {
		cfg.Addr = serveAddr
	}

	st, err := openStore(cfg, cfg.AutoMigrate)
	if err != nil {
		return err
	}
	defer st.Close()

	o, err := newOrchestrator(cfg, st)
	if err != nil {
		return err
	}
	rs := relay.NewServer(st, deepgramDialer(cfg), time.Duration(cfg.DeepgramKeepAliveSec)*time.Second)
	rs.ExpectFormat(audio.Expect{
		Encoding:   cfg.DeepgramEncoding,
		SampleRate: cfg.DeepgramSampleRate,
		Channels:   cfg.DeepgramChannels,
	})

	// A question pass makes several provider calls in a row.
	writeTimeout := time.Duration(3*cfg.LLMTimeoutSec+30) * time.Second
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      serverhttp.NewRouter(o, rs.Handle),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: writeTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", cfg.Addr).Str("version", version).Msg("interviewd server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("server failed")
		return err
	}
	log.Info().Msg("server stopped")
	return nil
}
