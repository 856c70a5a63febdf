package cmd

import (
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/joescharf/tagger/internal/logger"
	"github.com/joescharf/tagger/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for agent integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets an MCP client such as Claude create, find and bind tags
natively. Configure it with:

  {
    "mcpServers": {
      "tagger": { "command": "tagger", "args": ["mcp"] }
    }
  }

Available tools: tag_new, tag_remove, tag_update, tag_list, tag_bind,
tag_unbind, tag_list_instances, tag_list_instance_tags`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := getService()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), shutdownSignals()...)
		defer stop()

		logger.ComponentLogger("mcp").Infow("serving stdio", logger.FieldDialect, storeConfig().Dialect)
		return mcp.NewServer(svc, buildVersion).ServeStdio(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
