// Command cantrips-chat serves the chat protocol over WebSocket.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "cantrips-chat",
	Short: "Chat server speaking the cantrips message protocol",
	Long: `cantrips-chat serves the auth, channel, say and whisper commands over
WebSocket. Every frame is a {code, args, kwargs} JSON envelope; invalid
frames close the connection with 3002, 3003 or 3011 in strict mode.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to the YAML configuration file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
