package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/casta-dev/casta/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		errors.Fprint(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "casta",
		Short: "Push shared state to connected viewers over WebSocket",
		Long: `casta keeps one WebSocket session per connected viewer.

Every viewer is told its session id when it connects, then receives the
current shared state, then every update published after that. Viewers
that stop answering pings are disconnected.

Publish state with:
  curl -X PUT --data '{"site":"https://example.com"}' localhost:8080/api/state`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(
		serveCmd(),
		initCmd(),
		versionCmd(),
	)
	return cmd
}

// success prints a success message.
func success(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}
