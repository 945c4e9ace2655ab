package app

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
)

// ShowRoutes prints the configured routes to stdout.
func (a *App) ShowRoutes() error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ROUTE\tSOURCES\tTHRESHOLD USD\tTHRESHOLD ARS\tMONTHS\tTRIP")
	for _, r := range a.Config.Routes {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			r.Key(),
			strings.Join(r.Sources, ","),
			formatThreshold(r.ThresholdUSD),
			formatThreshold(r.ThresholdARS),
			r.MonthsAhead,
			r.TripType,
		)
	}
	return w.Flush()
}

func formatThreshold(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.0f", *v)
}
