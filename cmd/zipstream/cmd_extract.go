package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/streamware/zipstream"
)

func newExtractCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "extract [archive]",
		Short: "Extract an archive read from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := openArchive(cmd, args)
			if err != nil {
				return err
			}
			defer src.Close()

			r := newWarningReader(src)
			for {
				entry, err := r.ReadHeader()
				if errors.Is(err, io.EOF) {
					return nil
				}
				if err != nil {
					return err
				}

				data, entry, err := r.ReadData()
				if err != nil {
					return err
				}
				if err := writeExtracted(dir, entry, data); err != nil {
					return err
				}
			}
		},
	}

	cmd.Flags().StringVarP(&dir, "directory", "C", ".", "extract into this directory")
	return cmd
}

func writeExtracted(dir string, entry *zipstream.Entry, data []byte) error {
	name := filepath.FromSlash(entry.Name)
	if !filepath.IsLocal(name) {
		return fmt.Errorf("refusing to extract unsafe path %q", entry.Name)
	}
	path := filepath.Join(dir, name)

	if entry.IsDir() {
		return os.MkdirAll(path, dirMode(entry))
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	mode := entry.Mode
	if mode == 0 {
		mode = 0o644
	}
	if err := os.WriteFile(path, data, mode); err != nil {
		return err
	}
	if !entry.ModTime.IsZero() {
		if err := os.Chtimes(path, entry.ModTime, entry.ModTime); err != nil {
			return err
		}
	}
	return nil
}

func dirMode(entry *zipstream.Entry) os.FileMode {
	if entry.Mode != 0 {
		return entry.Mode
	}
	return 0o755
}
