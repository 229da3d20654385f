package main

import (
	"bytes"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"raspisanie/internal/ingest"
	"raspisanie/internal/parsing"
	"raspisanie/internal/update"
)

// newParseCmd parses a saved document and prints the events without
// touching storage.
func newParseCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "parse <file>",
		Short: "Parse a saved document and print what would be stored",
		Args:  cobra.ExactArgs(1),
		Example: `  raspisanie parse index.html
  raspisanie parse zvonki.html --kind calls
  raspisanie parse pit.pdf --kind cafeteria`,
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			ctype := mime.TypeByExtension(filepath.Ext(args[0]))
			p := parsing.New(parsing.Options{CabinetAliases: parsing.DefaultCabinetAliases})
			var batch ingest.Batch

			switch strings.ToLower(kind) {
			case "timetable":
				err = p.ParseTimetable(bytes.NewReader(body), ctype, &batch)
			case "calls":
				err = p.ParseCallSchedule(bytes.NewReader(body), ctype, &batch)
			case "cafeteria":
				var pages []parsing.Page
				if pages, err = parsing.PDFPages(body); err == nil {
					err = p.ParseCafeteria(pages, &batch)
				}
			default:
				return fmt.Errorf("unknown kind %q (timetable, calls, cafeteria)", kind)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, l := range batch.Links {
				fmt.Fprintf(out, "link %q -> %s\n", l.Label, l.Href)
			}
			for _, u := range batch.Issues {
				fmt.Fprintf(out, "unparsable %s\n", u)
			}
			st, err := ingest.LogSink{W: out}.Apply(cmd.Context(), batch.Events, map[string]string{kind: update.Sum(body)})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "sessions=%d calls=%d cafeteria=%d\n", st.Sessions, st.CallEntries, st.Slots)
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "timetable", "document kind: timetable, calls or cafeteria")
	return cmd
}
