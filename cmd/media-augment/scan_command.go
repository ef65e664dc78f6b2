package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"media-augment-go/pkg/types"
	"media-augment-go/pkg/urlutil"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	var activate bool

	cmd := &cobra.Command{
		Use:   "scan <page-url>",
		Short: "Fetch a page and list the controls it would receive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.open(activate)
			if err != nil {
				return err
			}
			defer a.Close()

			cfg := a.Ctx.Config
			pageURL := urlutil.ResolveURL(args[0], cfg.SiteURL+"/")
			if !urlutil.HostMatches(pageURL, cfg.SiteDomain()) {
				return fmt.Errorf("%s is not a %s page", args[0], cfg.SiteDomain())
			}

			doc, err := a.Ctx.Fetcher.Fetch(cmd.Context(), pageURL)
			if err != nil {
				return err
			}
			s := a.Ctx.OpenSession(doc, "")
			report := s.LastReport()

			out := cmd.OutOrStdout()
			if len(report.Injected) == 0 {
				fmt.Fprintln(out, "No items found.")
			} else {
				rows := make([][]string, 0, len(report.Injected))
				for i, inj := range report.Injected {
					rows = append(rows, []string{strconv.Itoa(i + 1), inj.ID.String(), string(inj.Shape), string(inj.Variant)})
				}
				fmt.Fprintln(out, renderTable([]string{"#", "Item", "Layout", "Control"}, rows, []columnAlignment{alignRight}))
			}
			if report.Unresolved > 0 || report.Failures > 0 {
				fmt.Fprintf(out, "%d container(s) without an identifier, %d failure(s)\n", report.Unresolved, report.Failures)
			}
			if !activate {
				return nil
			}

			for _, inj := range report.Injected {
				if err := s.Activate(cmd.Context(), inj.ID); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", inj.ID, types.Describe(err))
					continue
				}
				snap, _ := s.Control(inj.ID)
				fmt.Fprintf(out, "%s: saved %s\n", inj.ID, snap.LastFile)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&activate, "download", false, "Activate every control after scanning")
	return cmd
}
