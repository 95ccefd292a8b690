// Command atlasctl drives the media collection of one entity from a shell:
// listing, uploading, linking, ordering and refreshing attachments through
// the Atlas media API.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	cmd, finish := newRootCommand()
	err := cmd.Execute()
	finish()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
