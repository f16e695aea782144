package main

import (
	"context"
	"os"

	"github.com/RichardoC/relaychat/internal/commands"
)

// relaychat-server runs only the relay. The config file comes from
// RELAYCHAT_CONFIG and the environment, which suits container images.
func main() {
	if err := commands.Serve(context.Background(), ""); err != nil {
		os.Exit(1)
	}
}
