package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "zipstream",
		Short: "Streaming ZIP archiver for pipes and sockets",
		Long: `zipstream creates, lists and extracts ZIP archives strictly
sequentially, so archives can be read from or written to pipes without
ever seeking.`,
		SilenceUsage: true,
	}

	root.AddCommand(newCreateCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newExtractCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
