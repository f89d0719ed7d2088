// genstats is the command-line client for the dataset analysis backend.
//
// Usage:
//
//	genstats upload <file>          send a CSV dataset and remember its handle
//	genstats summary                fetch the summary of the current dataset
//	genstats ask <query...>         request AI insights
//	genstats status                 show the stored session
//	genstats history                list recorded operations
//	genstats reset                  forget the stored session
//	genstats shell                  interactive session with the realtime channel
//	genstats stub                   run the canned local backend
package main

import (
	"fmt"
	"os"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
