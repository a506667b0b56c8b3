package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/streamware/zipstream"
	"github.com/streamware/zipstream/internal/sys"
)

func newCreateCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "create <path>...",
		Short: "Create an archive from files and directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dest := cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				dest = f
			}

			w := zipstream.NewWriter(dest)
			for _, root := range args {
				if err := addPath(w, root); err != nil {
					return err
				}
			}
			return w.Close()
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write the archive to a file instead of stdout")
	return cmd
}

func addPath(w *zipstream.Writer, root string) error {
	root = filepath.Clean(root)
	base := filepath.Dir(root)

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() && !info.IsDir() {
			fmt.Fprintf(os.Stderr, "zipstream: skipping %s: not a regular file\n", path)
			return nil
		}

		name, err := filepath.Rel(base, path)
		if err != nil {
			return err
		}
		name = filepath.ToSlash(name)

		entry := zipstream.Entry{
			Name:    name,
			Mode:    info.Mode().Perm(),
			ModTime: info.ModTime(),
		}
		meta := sys.Stat(info)
		if meta.HasOwner {
			entry.Owner = &zipstream.Owner{UID: meta.UID, GID: meta.GID}
			entry.AccessTime = meta.AccessTime
			entry.ChangeTime = meta.ChangeTime
		}

		if info.IsDir() {
			entry.Kind = zipstream.KindDirectory
			return w.AddDirectory(entry)
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		entry.Size = info.Size()
		return w.AddFile(entry, f)
	})
}
