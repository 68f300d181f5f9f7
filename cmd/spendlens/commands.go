package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"

	"github.com/j-veylop/spendlens/internal/db"
	"github.com/j-veylop/spendlens/internal/logger"
	"github.com/j-veylop/spendlens/internal/models"
	"github.com/j-veylop/spendlens/internal/services"
	"github.com/j-veylop/spendlens/internal/services/snapshot"
	"github.com/j-veylop/spendlens/internal/ui/components"
	"github.com/j-veylop/spendlens/internal/ui/report"
	"github.com/j-veylop/spendlens/internal/ui/styles"
)

func selectionFlags(period string) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "period",
			Aliases: []string{"p"},
			Value:   period,
			Usage:   "mtd, prev-month, 6m, 12m or custom",
		},
		&cli.StringFlag{Name: "from", Usage: "First day of a custom period (YYYY-MM-DD)"},
		&cli.StringFlag{Name: "to", Usage: "Last day of a custom period (YYYY-MM-DD)"},
		&cli.StringFlag{Name: "entity", Aliases: []string{"e"}, Usage: "Restrict to one entity"},
		&cli.StringFlag{Name: "subscription", Usage: "Restrict to one subscription"},
	}
}

// parseSelection builds a Selection from the selection flags.
func parseSelection(c *cli.Context) (models.Selection, error) {
	sel := models.Selection{
		Period:         models.Period(strings.ToLower(c.String("period"))),
		EntityID:       c.String("entity"),
		SubscriptionID: c.String("subscription"),
		Granularity:    models.Granularity(strings.ToLower(c.String("granularity"))),
	}
	for name, dst := range map[string]**time.Time{"from": &sel.From, "to": &sel.To} {
		v := c.String(name)
		if v == "" {
			continue
		}
		t, err := time.Parse(models.DayLayout, v)
		if err != nil {
			return sel, fmt.Errorf("invalid --%s %q: want YYYY-MM-DD", name, v)
		}
		*dst = &t
	}
	if sel.From != nil || sel.To != nil {
		if !c.IsSet("period") {
			sel.Period = models.PeriodCustom
		}
	}
	switch sel.Granularity {
	case "", models.GranularityDay, models.GranularityMonth:
	default:
		return sel, fmt.Errorf("invalid --granularity %q: want day or month", sel.Granularity)
	}
	return sel, nil
}

func aggregateCommand() *cli.Command {
	return &cli.Command{
		Name:  "aggregate",
		Usage: "Sum spend over a period, entity and subscription",
		Flags: append(selectionFlags(string(models.PeriodMTD)),
			&cli.StringFlag{Name: "granularity", Aliases: []string{"g"}, Usage: "day or month (defaults by period)"},
		),
		Action: func(c *cli.Context) error {
			sel, err := parseSelection(c)
			if err != nil {
				return err
			}
			mgr, err := openManager(c)
			if err != nil {
				return err
			}
			defer mgr.Close()

			ts, err := mgr.Aggregate(sel)
			if err != nil {
				return err
			}
			return output(c, ts, func() string {
				return report.Spend(ts, mgr.Facts().EntityNames())
			})
		},
	}
}

func reconcileCommand() *cli.Command {
	return &cli.Command{
		Name:  "reconcile",
		Usage: "Compare invoiced spend with API-reported spend per entity and month",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "months", Aliases: []string{"m"}, Usage: "Months to reconcile (YYYY-MM); all by default"},
		},
		Action: func(c *cli.Context) error {
			months := c.StringSlice("months")
			for _, m := range months {
				if _, err := time.Parse(models.MonthLayout, m); err != nil {
					return fmt.Errorf("invalid month %q: want YYYY-MM", m)
				}
			}
			mgr, err := openManager(c)
			if err != nil {
				return err
			}
			defer mgr.Close()

			rows, err := mgr.Reconcile(months...)
			if err != nil {
				return err
			}
			return output(c, rows, func() string { return report.Ledger(rows) })
		},
	}
}

func wasteCommand() *cli.Command {
	return &cli.Command{
		Name:  "waste",
		Usage: "List inactive, underutilized and redundant paid licenses",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "entity", Aliases: []string{"e"}, Usage: "Restrict to one entity"},
		},
		Action: func(c *cli.Context) error {
			mgr, err := openManager(c)
			if err != nil {
				return err
			}
			defer mgr.Close()

			w, err := mgr.AnalyzeWaste(c.String("entity"))
			if err != nil {
				return err
			}
			return output(c, w, func() string { return report.Waste(w) })
		},
	}
}

func forecastCommand() *cli.Command {
	return &cli.Command{
		Name:  "forecast",
		Usage: "Project monthly spend forward",
		Flags: append(selectionFlags(string(models.Period12M)),
			&cli.StringFlag{Name: "method", Aliases: []string{"M"}, Usage: "linear-regression, exponential-smoothing or moving-average"},
			&cli.IntFlag{Name: "horizon", Aliases: []string{"n"}, Usage: "Months to project (defaults to FORECAST_HORIZON)"},
		),
		Action: func(c *cli.Context) error {
			sel, err := parseSelection(c)
			if err != nil {
				return err
			}
			sel.Granularity = models.GranularityMonth
			mgr, err := openManager(c)
			if err != nil {
				return err
			}
			defer mgr.Close()

			method := models.ForecastMethod(strings.ToLower(c.String("method")))
			points, err := mgr.Forecast(sel, method, c.Int("horizon"))
			if err != nil {
				return err
			}
			history, err := mgr.ForecastHistory(sel)
			if err != nil {
				return err
			}
			if method == "" {
				method = mgr.DefaultForecastMethod()
			}
			return output(c, points, func() string { return report.Forecast(history, method, points) })
		},
	}
}

func recommendCommand() *cli.Command {
	return &cli.Command{
		Name:  "recommend",
		Usage: "Rank cost-saving actions",
		Action: func(c *cli.Context) error {
			mgr, err := openManager(c)
			if err != nil {
				return err
			}
			defer mgr.Close()

			recs, err := mgr.Recommendations()
			if err != nil {
				return err
			}
			return output(c, recs, func() string { return report.Recommendations(recs) })
		},
	}
}

func reportCommand() *cli.Command {
	return &cli.Command{
		Name:  "report",
		Usage: "Print every analysis in one report",
		Action: func(c *cli.Context) error {
			mgr, err := openManager(c)
			if err != nil {
				return err
			}
			defer mgr.Close()

			r, err := buildReport(mgr)
			if err != nil {
				return err
			}
			doc := struct {
				report.Report
				ForecastError string `json:"forecastError,omitempty"`
			}{Report: r}
			if r.ForecastErr != nil {
				doc.ForecastError = r.ForecastErr.Error()
			}
			return output(c, doc, func() string { return report.Render(r) })
		},
	}
}

// buildReport runs every query for the full report. A forecast that cannot
// run is shown in place of the forecast section rather than failing.
func buildReport(mgr *services.Manager) (report.Report, error) {
	fs := mgr.Facts()
	r := report.Report{
		GeneratedAt:    fs.GeneratedAt,
		Entities:       fs.EntityNames(),
		ForecastMethod: mgr.DefaultForecastMethod(),
	}

	var err error
	sel := models.Selection{Period: models.Period12M, Granularity: models.GranularityMonth}
	if r.Spend, err = mgr.Aggregate(sel); err != nil {
		return r, err
	}
	if r.Ledger, err = mgr.Reconcile(); err != nil {
		return r, err
	}
	if r.Waste, err = mgr.AnalyzeWaste(""); err != nil {
		return r, err
	}
	if r.Recommendations, err = mgr.Recommendations(); err != nil {
		return r, err
	}
	if r.ForecastHistory, err = mgr.ForecastHistory(sel); err != nil {
		return r, err
	}
	r.Forecast, r.ForecastErr = mgr.Forecast(sel, "", 0)
	return r, nil
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Reload the snapshot file on every rewrite and report changes",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "notify", Usage: "Send a desktop notification for new critical recommendations"},
		},
		Action: func(c *cli.Context) error {
			mgr, cfg, err := newManager(c)
			if err != nil {
				return err
			}
			defer mgr.Close()

			mgr.SetNotify(c.Bool("notify"))
			events := mgr.Subscribe()
			if err := mgr.Watch(cfg.SnapshotPath); err != nil {
				return err
			}
			logger.Info("watching snapshot", "path", cfg.SnapshotPath)

			for {
				select {
				case <-c.Context.Done():
					return nil
				case event, ok := <-events:
					if !ok {
						return nil
					}
					printEvent(c, event)
				}
			}
		},
	}
}

func printEvent(c *cli.Context, event services.ServiceEvent) {
	w := c.App.Writer
	switch e := event.(type) {
	case services.SnapshotLoadedEvent:
		s := e.Stats
		fmt.Fprintln(w, styles.SuccessTextStyle.Render(fmt.Sprintf(
			"loaded %s: %d entities, %d costs, %d totals, %d licenses, %d invoices, %d resources",
			e.Source, s.Entities, s.Costs, s.Totals, s.Licenses, s.Invoices, s.Resources)))
	case services.CriticalRecommendationsEvent:
		fmt.Fprintln(w, report.Recommendations(e.Recommendations))
	case services.ErrorEvent:
		fmt.Fprintln(w, styles.ErrorTextStyle.Render(fmt.Sprintf("%s: %v", e.Service, e.Error)))
	}
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Store a snapshot JSON file in the SQLite store",
		ArgsUsage: "[snapshot.json]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "source", Usage: "Label recorded with the snapshot (defaults to the file path)"},
			&cli.IntFlag{Name: "keep", Usage: "Keep only the newest N snapshots after importing (0 keeps all)"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			path := lo.CoalesceOrEmpty(c.Args().First(), cfg.SnapshotPath)
			if cfg.DatabasePath == "" {
				return errors.New("no database configured; pass --db or set DATABASE_PATH")
			}

			raw, err := snapshot.LoadFile(path)
			if err != nil {
				return err
			}
			database, err := db.New(cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer database.Close()

			id, err := database.SaveSnapshot(c.Context, raw, lo.CoalesceOrEmpty(c.String("source"), path))
			if err != nil {
				return err
			}
			logger.Info("snapshot imported", "id", id, "path", path, "db", cfg.DatabasePath)

			var pruned int64
			if keep := c.Int("keep"); keep > 0 {
				if pruned, err = database.Prune(c.Context, keep); err != nil {
					return err
				}
			}
			if pruned > 0 {
				if err := database.Vacuum(); err != nil {
					logger.Warn("vacuum failed", "db", cfg.DatabasePath, "error", err)
				}
			}

			result := map[string]int64{"id": id, "pruned": pruned}
			return output(c, result, func() string {
				return styles.SuccessTextStyle.Render(fmt.Sprintf("imported snapshot %d from %s (%d pruned)", id, path, pruned))
			})
		},
	}
}

func snapshotsCommand() *cli.Command {
	return &cli.Command{
		Name:  "snapshots",
		Usage: "List snapshots held in the SQLite store",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if cfg.DatabasePath == "" {
				return errors.New("no database configured; pass --db or set DATABASE_PATH")
			}
			if _, err := os.Stat(cfg.DatabasePath); err != nil {
				return fmt.Errorf("failed to open %s: %w", cfg.DatabasePath, err)
			}
			database, err := db.New(cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer database.Close()

			infos, err := database.ListSnapshots(c.Context)
			if err != nil {
				return err
			}
			return output(c, infos, func() string {
				t := components.Table{
					Headers:    []string{"ID", "Generated", "Imported", "Source", "Records"},
					RightAlign: map[int]bool{0: true, 4: true},
				}
				for _, info := range infos {
					generated := "-"
					if !info.GeneratedAt.IsZero() {
						generated = info.GeneratedAt.Format(time.RFC3339)
					}
					t.Rows = append(t.Rows, []string{
						fmt.Sprint(info.ID),
						generated,
						humanize.Time(info.ImportedAt),
						info.Source,
						humanize.Comma(int64(info.Records)),
					})
				}
				return components.RenderTable(t)
			})
		},
	}
}
