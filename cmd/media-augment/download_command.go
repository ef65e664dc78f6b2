package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"media-augment-go/pkg/control"
	"media-augment-go/pkg/interfaces"
	"media-augment-go/pkg/types"
)

func newDownloadCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "download <item-id>...",
		Short: "Resolve items and download their best available video",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.open(true)
			if err != nil {
				return err
			}
			defer a.Close()

			var rows [][]string
			failed := 0
			for _, arg := range args {
				id := types.ItemID(arg)
				path, size, err := fetchItem(cmd, a.Ctx.Resolver, a.Ctx.Downloader, id)
				if err != nil {
					failed++
					rows = append(rows, []string{arg, "failed", types.Describe(err)})
					continue
				}
				rows = append(rows, []string{arg, humanize.Bytes(uint64(size)), path})
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Item", "Size", "File"}, rows, []columnAlignment{alignLeft, alignRight}))
			if failed > 0 {
				return fmt.Errorf("%d of %d download(s) failed", failed, len(args))
			}
			return nil
		},
	}
}

func fetchItem(cmd *cobra.Command, resolver interfaces.ItemResolver, downloader interfaces.DownloadMechanism, id types.ItemID) (string, int64, error) {
	desc, err := resolver.Resolve(cmd.Context(), id)
	if err != nil {
		return "", 0, err
	}
	mediaURL, err := control.SelectURL(desc)
	if err != nil {
		return "", 0, err
	}
	res := downloader.Download(cmd.Context(), mediaURL, control.Filename(id, mediaURL))
	if res.Err != nil {
		return "", 0, res.Err
	}
	return res.Path, res.Bytes, nil
}
