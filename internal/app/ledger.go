package app

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"
)

// ShowLedger prints the current alert ledger entries to stdout.
func (a *App) ShowLedger() error {
	led := a.openLedger()
	entries := led.Entries()

	if len(entries) == 0 {
		fmt.Println("ledger is empty")
		return nil
	}

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ROUTE\tPRICE\tCURRENCY\tALERTED AT\tAGE")
	for _, k := range keys {
		e := entries[k]
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			k,
			e.Price.StringFixed(0),
			e.Currency,
			e.AlertedAt.UTC().Format("2006-01-02 15:04:05"),
			time.Since(e.AlertedAt).Round(time.Minute),
		)
	}
	return w.Flush()
}
