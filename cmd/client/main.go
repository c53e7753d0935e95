// Command client is a terminal chat client: it logs in, keeps the realtime
// connection alive and lets you read and send messages room by room.
//
// Configuration comes from the environment or a .env file:
//
//   - CHAT_API_URL, CHAT_WS_URL: backend endpoints
//   - CHAT_TOKEN: session token to resume instead of logging in
//   - DATABASE_URL: optional Postgres message archive
//   - METRICS_ADDR: optional address for the Prometheus /metrics endpoint
package main

import (
	"os"

	"chat-client/pkg/logger"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := buildRootCmd()
	err := rootCmd.Execute()
	logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "client",
		Short:        "Terminal client for the chat backend",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildLoginCmd(),
		buildRoomsCmd(),
		buildConnectCmd(),
	)
	return rootCmd
}
