package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/obiente/interviewd/internal/config"
	"github.com/obiente/interviewd/internal/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the extraction tools over MCP on stdio",
	RunE:  runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	st, err := openStore(cfg, cfg.AutoMigrate)
	if err != nil {
		return err
	}
	defer st.Close()

	o, err := newOrchestrator(cfg, st)
	if err != nil {
		return err
	}
	log.Info().Str("version", version).Msg("mcp server on stdio")
	return mcpserver.ServeStdio(mcpserver.New(o, version))
}
