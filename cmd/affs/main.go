// Command affs inspects Amiga disk images.
//
// Usage:
//
//	affs info <image>
//	affs ls [-l] <image> [path]
//	affs cat <image> <path>
//	affs readlink <image> <path>
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	affs "github.com/MuntasirSZN/affs-read"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "affs",
		Short:         "Read Amiga (AFFS/OFS) disk images",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(infoCmd(), lsCmd(), catCmd(), readlinkCmd())
	return root
}

// openVolume opens an image file and mounts it, sizing the volume from the
// image length.
func openVolume(path string) (*affs.Fs, func(), error) {
	img, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}

	stat, err := img.Stat()
	if err != nil {
		img.Close()
		return nil, nil, err
	}

	fs, err := affs.NewWithSize(affs.ReaderAtDevice{R: img}, uint32(stat.Size()/affs.BlockSize))
	if err != nil {
		img.Close()
		return nil, nil, fmt.Errorf("%s: not a mountable AFFS image: %w", path, err)
	}

	return fs, func() { img.Close() }, nil
}

func infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <image>",
		Short: "Show volume information",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, done, err := openVolume(args[0])
			if err != nil {
				return err
			}
			defer done()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Volume:   %s\n", fs.Label())
			fmt.Fprintf(out, "Type:     %s\n", fs.FsType())
			fmt.Fprintf(out, "Blocks:   %d (root at %d)\n", fs.TotalBlocks(), fs.RootBlock())
			fmt.Fprintf(out, "Created:  %s\n", fs.Created().Time().Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out, "Modified: %s\n", fs.Modified().Time().Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out, "Bitmap:   valid=%v\n", fs.BitmapValid())
			return nil
		},
	}
}

func lsCmd() *cobra.Command {
	var long bool

	cmd := &cobra.Command{
		Use:   "ls <image> [path]",
		Short: "List a directory",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, done, err := openVolume(args[0])
			if err != nil {
				return err
			}
			defer done()

			path := "/"
			if len(args) == 2 {
				path = args[1]
			}

			entry, err := fs.FindPath(path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}

			out := cmd.OutOrStdout()
			if !entry.IsDir() {
				printEntry(out, entry, long)
				return nil
			}

			it, err := fs.ReadDir(entry.Block)
			if err != nil {
				return err
			}
			for it.Next() {
				printEntry(out, it.Entry(), long)
			}
			return it.Err()
		},
	}

	cmd.Flags().BoolVarP(&long, "long", "l", false, "long listing with protection bits, size and date")
	return cmd
}

func printEntry(out io.Writer, entry *affs.DirEntry, long bool) {
	name := entry.DisplayName()
	if entry.IsDir() {
		name += "/"
	}

	if !long {
		fmt.Fprintln(out, name)
		return
	}

	fmt.Fprintf(out, "%s %10d %s %s\n",
		entry.Access,
		entry.Size,
		entry.Date.Time().Format("2006-01-02 15:04"),
		name)
}

func catCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat <image> <path>",
		Short: "Copy a file's contents to stdout",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, done, err := openVolume(args[0])
			if err != nil {
				return err
			}
			defer done()

			entry, err := fs.FindPath(args[1])
			if err != nil {
				return fmt.Errorf("%s: %w", args[1], err)
			}
			if !entry.IsFile() {
				return fmt.Errorf("%s: not a file", args[1])
			}

			reader, err := fs.ReadFile(entry.Block)
			if err != nil {
				return err
			}

			buf := make([]byte, 64*1024)
			out := cmd.OutOrStdout()
			for {
				n, err := reader.Read(buf)
				if n > 0 {
					if _, werr := out.Write(buf[:n]); werr != nil {
						return werr
					}
				}
				if err == io.EOF {
					return nil
				}
				if err != nil {
					return err
				}
			}
		},
	}
}

func readlinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "readlink <image> <path>",
		Short: "Print a soft link's target",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, done, err := openVolume(args[0])
			if err != nil {
				return err
			}
			defer done()

			entry, err := fs.FindPath(args[1])
			if err != nil {
				return fmt.Errorf("%s: %w", args[1], err)
			}

			target, err := fs.ReadSymlink(entry.Block)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), target)
			return nil
		},
	}
}
