// Command kestrel is an AI code-review service for GitHub pull requests.
package main

import (
	"os"

	"github.com/AbdelazizMoustafa10m/Kestrel/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
