package cli

import (
	"fmt"
	"io"

	"github.com/bstardust/exif-geotag/internal/exif"
	"github.com/bstardust/exif-geotag/internal/fshelper"
	"github.com/bstardust/exif-geotag/internal/logger"
	"github.com/spf13/cobra"
)

func newViewCommand(a *app) *cobra.Command {
	var detail bool

	cmd := &cobra.Command{
		Use:   "view IMAGE",
		Short: "Print the EXIF tags of an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			listing, err := exif.NewViewer(fshelper.NewResolver(a.cfg.BaseDir)).View(args[0])
			if err != nil {
				return err
			}
			if detail {
				printDetail(a.out, listing)
			} else {
				printListing(a.out, listing)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&detail, "detail", false, "Include the IFD and tag ID of every entry")
	return cmd
}

func printListing(w io.Writer, listing *exif.Listing) {
	if !listing.HasExif() {
		fmt.Fprintf(w, "No EXIF data in %s\n", listing.Path)
		return
	}
	logger.Debug("%d tags in %s", listing.Len(), listing.Path)
	for name, value := range listing.All() {
		fmt.Fprintf(w, "%s: %s\n", name, value)
	}
}

func printDetail(w io.Writer, listing *exif.Listing) {
	if !listing.HasExif() {
		fmt.Fprintf(w, "No EXIF data in %s\n", listing.Path)
		return
	}
	for _, e := range listing.Entries() {
		fmt.Fprintf(w, "%-12s 0x%04x %s: %s\n", e.IFD, e.ID, e.Name, e.Value)
	}
}
