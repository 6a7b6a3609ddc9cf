package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/bher20/gmeter/internal/eop"
	"github.com/spf13/cobra"
)

// parseTimes accepts RFC 3339 timestamps or MJD values.
func parseTimes(args []string) ([]time.Time, error) {
	out := make([]time.Time, 0, len(args))
	for _, a := range args {
		if t, err := time.Parse(time.RFC3339Nano, a); err == nil {
			out = append(out, t)
			continue
		}
		mjd, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is neither an RFC 3339 time nor an MJD", a)
		}
		t, err := eop.CheckMJD(mjd)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", a, err)
		}
		out = append(out, t)
	}
	return out, nil
}

func newPoleCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "pole [time|mjd]...",
		Short: "Print interpolated pole coordinates (default: now)",
		RunE: func(cmd *cobra.Command, args []string) error {
			times, err := parseTimes(args)
			if err != nil {
				return err
			}
			if len(times) == 0 {
				times = []time.Time{time.Now().UTC()}
			}

			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			poles, err := e.provider.GetPoleBatch(cmd.Context(), times)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd, poles)
			}
			for _, p := range poles {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  mjd=%.5f  x=%.6f  y=%.6f  %s (%s)\n",
					p.Time.UTC().Format(time.RFC3339), p.MJD, p.X.Value, p.Y.Value, p.Provenance, p.Provenance.Bulletin())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Fetch the configured bulletin now and store the table",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			if _, err := e.provider.Refresh(cmd.Context()); err != nil {
				return err
			}
			return printJSON(cmd, e.provider.Status())
		},
	}
}
