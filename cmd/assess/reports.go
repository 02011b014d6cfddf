package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/ashureev/talent-manual/internal/store"
	"github.com/spf13/cobra"
)

func newReportsCmd(opts *options) *cobra.Command {
	var clientID string
	var limit int

	cmd := &cobra.Command{
		Use:   "reports",
		Short: "List archived reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.dbPath == "" {
				return errors.New("--db is required")
			}
			repo, err := store.NewSQLite(opts.dbPath)
			if err != nil {
				return err
			}
			defer closeLogged(opts.logger(), "repository", repo)

			records, err := repo.ListReports(cmd.Context(), clientID, limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tMODE\tFALLBACK\tCREATED\tTRAITS")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s\t%v\t%s\t%s\n",
					r.ID, r.Mode, r.Fallback, r.CreatedAt.Format("2006-01-02 15:04"),
					strings.Join(r.Report.CoreTraits, ","))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&clientID, "client", cliClientID, "client whose reports to list")
	cmd.Flags().IntVar(&limit, "limit", store.DefaultListLimit, "maximum number of reports")
	return cmd
}
