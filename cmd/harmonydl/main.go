// =============================================================================
// FILE: cmd/harmonydl/main.go
// PURPOSE: Entrypoint. Delegates to the cobra root command.
// =============================================================================

package main

import "harmonydl/internal/cli"

func main() {
	cli.Execute()
}
