package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/streamware/zipstream"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [archive]",
		Short: "List the entries of an archive read from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := openArchive(cmd, args)
			if err != nil {
				return err
			}
			defer src.Close()

			out := cmd.OutOrStdout()
			r := newWarningReader(src)
			for {
				entry, err := r.ReadHeader()
				if errors.Is(err, io.EOF) {
					return nil
				}
				if err != nil {
					return err
				}

				_, entry, err = r.ReadData()
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%10d  %s  %s\n", entry.Size, entry.ModTime.Format("2006-01-02 15:04"), entry.Name)
			}
		},
	}
}

func openArchive(cmd *cobra.Command, args []string) (io.ReadCloser, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	return os.Open(args[0])
}

func newWarningReader(src io.Reader) *zipstream.Reader {
	return zipstream.NewReaderWithConfig(src, zipstream.ReaderConfig{
		Warn: func(msg string) {
			fmt.Fprintf(os.Stderr, "zipstream: warning: %s\n", msg)
		},
	})
}
