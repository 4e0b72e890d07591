package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"crawlq/internal/command"
	"crawlq/internal/config"
	"crawlq/internal/queue"
)

func newResultsCommand(ctx *commandContext) *cobra.Command {
	var (
		genre  string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "results",
		Short: "List extracted movie details",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				records, err := store.ListResults(cmd.Context())
				if err != nil {
					return err
				}
				results := make([]command.Result, 0, len(records))
				for _, r := range records {
					if genre != "" && !strings.EqualFold(r.Genre, genre) {
						continue
					}
					results = append(results, command.Result{
						URL:    r.URL,
						Title:  r.Title,
						Genre:  r.Genre,
						Year:   r.Year,
						Rating: r.Rating,
					})
				}
				if asJSON {
					return writeJSON(cmd, results)
				}
				if len(results) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No results yet")
					return nil
				}
				rows := make([][]string, 0, len(results))
				for _, r := range results {
					year := ""
					if r.Year > 0 {
						year = strconv.Itoa(r.Year)
					}
					rating := ""
					if r.Rating > 0 {
						rating = strconv.FormatFloat(r.Rating, 'f', 1, 64)
					}
					rows = append(rows, []string{r.Genre, r.Title, year, rating, r.URL})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"Genre", "Title", "Year", "Rating", "URL"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&genre, "genre", "", "Only show results for this genre")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
