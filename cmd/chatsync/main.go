// Command chatsync is a group chat client and history server for a shared
// pub/sub broker.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/chatsync/internal/cli"
)

func main() {
	rootCmd := cli.NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
