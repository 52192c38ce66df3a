// mcp.go implements "hearnow mcp", which serves stored sessions to MCP
// clients over stdio.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/codev612/hearnow/internal/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve sessions and modes as MCP tools over stdio",
	Long: `Run an MCP server on stdin/stdout with the tools list_sessions,
export_session and list_modes. Logs go to the log file, never stdout.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		e.log.Info().Str("version", version).Msg("mcp server starting")
		return mcpserver.ServeStdio(mcpserver.NewServer(e.store, version, e.log))
	},
}
