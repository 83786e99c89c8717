package app

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/deusflow/newspulse/internal/aggregate"
	"github.com/deusflow/newspulse/internal/models"
	"github.com/deusflow/newspulse/internal/news"
	"github.com/deusflow/newspulse/internal/rss"
)

// printPage writes one line per story. Clusters list the other sources
// underneath; fresh stories are starred and read ones dimmed with "~".
func printPage(w io.Writer, page news.Page) {
	if page.Total == 0 {
		fmt.Fprintln(w, "No stories.")
		return
	}
	first := (page.Page-1)*page.PerPage + 1
	for i, it := range page.Items {
		fmt.Fprintf(w, "%s%3d. %s\n", marker(it), first+i, it.Entity.Title())
		fmt.Fprintf(w, "      %s · %s\n", it.Entity.Source(), age(it.Entity.Date(), time.Now()))
		if it.Entity.IsCluster() {
			related := it.Entity.Cluster().Related
			names := make([]string, 0, len(related))
			for _, r := range related {
				names = append(names, r.Source)
			}
			fmt.Fprintf(w, "      + %d more: %s\n", len(related), strings.Join(names, ", "))
		}
		fmt.Fprintf(w, "      %s\n", it.Entity.Link())
	}
	pages := (page.Total + page.PerPage - 1) / page.PerPage
	fmt.Fprintf(w, "\nPage %d of %d (%d stories)\n", page.Page, pages, page.Total)
}

func marker(it news.Item) string {
	switch {
	case it.Read:
		return "~"
	case it.Fresh:
		return "*"
	default:
		return " "
	}
}

func age(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.Format("2 Jan 2006")
	}
}

func printTags(w io.Writer, entries []models.TagEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No trending tags.")
		return
	}
	for _, e := range entries {
		hot := ""
		if e.Hot {
			hot = " (hot)"
		}
		fmt.Fprintf(w, "%-24s %3d%s\n", e.Tag, e.Count, hot)
	}
}

func printReport(w io.Writer, r aggregate.Report) {
	for _, res := range r.Results {
		if res.OK() {
			fmt.Fprintf(w, "  ok    %-20s %4d items  %s\n", res.SourceID, res.Articles, res.Duration.Round(time.Millisecond))
		} else {
			fmt.Fprintf(w, "  fail  %-20s %s\n", res.SourceID, res.Error)
		}
	}
	if r.Rebuilt {
		fmt.Fprintf(w, "Master rebuilt (%s).\n", r.Reason)
	} else {
		fmt.Fprintln(w, "Master unchanged.")
	}
}

func printSources(w io.Writer, sources []rss.Source) {
	if len(sources) == 0 {
		fmt.Fprintln(w, "No sources configured.")
		return
	}
	for i, s := range sources {
		state := "on "
		if !s.Enabled {
			state = "off"
		}
		fmt.Fprintf(w, "%2d. [%s] %-20s %s\n", i+1, state, s.ID(), s.URL)
	}
}
