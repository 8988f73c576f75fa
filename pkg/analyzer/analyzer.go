// Package analyzer renders debit records for people: console summaries and
// HTML chart artifacts. It never mutates records and is safe to run on the
// output of any collector mode.
package analyzer

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/ymurata/debitwatch/pkg/aggregate"
	"github.com/ymurata/debitwatch/pkg/api"
)

// Analyzer holds one immutable set of records plus the name of wherever they
// came from, shown in the summary header.
type Analyzer struct {
	records []api.DebitRecord
	source  string
	logger  *slog.Logger
}

// New creates an analyzer over the given records. source names the data
// origin for display, typically a cache file path.
func New(records []api.DebitRecord, source string, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{records: records, source: source, logger: logger}
}

// Summary aggregates all held records.
func (a *Analyzer) Summary() api.Summary {
	return aggregate.Aggregate(a.records, nil)
}

// WriteTotal writes only the grand total, one line. Used by summary-only runs
// so the output stays script-friendly.
func (a *Analyzer) WriteTotal(w io.Writer) {
	fmt.Fprintf(w, "¥%s\n", yen(a.Summary().Total))
}

// WriteSummary writes the full human-readable summary: headline figures, then
// per-month and per-payee breakdowns.
func (a *Analyzer) WriteSummary(w io.Writer) {
	s := a.Summary()
	months := aggregate.Months(s)

	fmt.Fprintln(w, "=== 口座振替データ サマリ ===")
	if a.source != "" {
		fmt.Fprintf(w, "データソース: %s\n", a.source)
	}
	if len(months) > 0 {
		fmt.Fprintf(w, "期間: %s ~ %s\n", months[0], months[len(months)-1])
	}
	fmt.Fprintf(w, "総振替金額: ¥%s\n", yen(s.Total))
	fmt.Fprintf(w, "振替件数: %d件\n", s.RecordCount)
	fmt.Fprintf(w, "対象月数: %dヶ月\n", s.MonthCount)
	fmt.Fprintf(w, "振替先数: %d社\n", s.PayeeCount)

	monthCounts, payeeCounts := a.counts()

	fmt.Fprintln(w, "\n=== 月別サマリ ===")
	for _, m := range months {
		fmt.Fprintf(w, "%s: ¥%s (%d件)\n", m, yen(s.ByMonth[m]), monthCounts[m])
	}

	fmt.Fprintln(w, "\n=== 振替先別サマリ ===")
	for _, p := range aggregate.PayeesByTotal(s) {
		fmt.Fprintf(w, "%s: ¥%s (%d件)\n", p, yen(s.ByPayee[p]), payeeCounts[p])
	}
}

// WriteDetails writes the per-record listing. In year mode records are
// grouped under their month with a month subtotal; otherwise they print as a
// flat list for the single month. newKeys marks records picked up in this run
// so their subtotal can be reported separately.
func (a *Analyzer) WriteDetails(w io.Writer, yearMode bool, newKeys map[string]bool) {
	if len(a.records) == 0 {
		if yearMode {
			fmt.Fprintln(w, "過去1年分の口座振替情報は見つかりませんでした")
		} else {
			fmt.Fprintln(w, "口座振替情報は見つかりませんでした")
		}
		return
	}

	s := a.Summary()

	if yearMode {
		fmt.Fprintln(w, "過去1年分の口座振替情報:")
		for _, m := range aggregate.Months(s) {
			fmt.Fprintf(w, "\n%s (¥%s)\n", m, yen(s.ByMonth[m]))
			for _, r := range a.records {
				if r.YearMonth != m {
					continue
				}
				fmt.Fprintf(w, "  %s ¥%s%s\n", r.Payee, yen(r.Amount), newMark(newKeys, r))
			}
		}
		fmt.Fprintf(w, "\n過去1年分の口座振替合計：¥%s\n", yen(s.Total))
	} else {
		for _, r := range a.records {
			fmt.Fprintf(w, "%s %s ¥%s%s\n", r.YearMonth, r.Payee, yen(r.Amount), newMark(newKeys, r))
		}
		fmt.Fprintf(w, "今月の口座振替合計：¥%s\n", yen(s.Total))
	}

	var newTotal int64
	var newCount int
	for _, r := range a.records {
		if newKeys[r.Key()] {
			newTotal += r.Amount
			newCount++
		}
	}
	if newCount > 0 {
		fmt.Fprintf(w, "新規取得分：¥%s\n", yen(newTotal))
	}
}

func newMark(newKeys map[string]bool, r api.DebitRecord) string {
	if newKeys[r.Key()] {
		return " *"
	}
	return ""
}

// SaveCharts renders the monthly stacked bar, payee monthly-average pie, and
// a combined dashboard into dir. It returns the paths written.
func (a *Analyzer) SaveCharts(dir string) ([]string, error) {
	if len(a.records) == 0 {
		return nil, fmt.Errorf("no records to chart")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	artifacts := []struct {
		name   string
		render components.Charter
	}{
		{"monthly_bar.html", a.monthlyBar()},
		{"payee_pie.html", a.payeePie()},
	}

	var paths []string
	for _, art := range artifacts {
		path := filepath.Join(dir, art.name)
		if err := renderPage(path, art.render); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}

	dashboard := filepath.Join(dir, "dashboard.html")
	if err := renderPage(dashboard, a.monthlyBar(), a.payeePie()); err != nil {
		return paths, err
	}
	paths = append(paths, dashboard)

	a.logger.Info("charts written", "dir", dir, "count", len(paths))
	return paths, nil
}

func renderPage(path string, chs ...components.Charter) error {
	page := components.NewPage()
	page.AddCharts(chs...)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating chart file: %w", err)
	}
	defer f.Close()

	if err := page.Render(f); err != nil {
		return fmt.Errorf("rendering %s: %w", filepath.Base(path), err)
	}
	return nil
}

// monthlyBar builds the stacked per-payee bar over all months in range.
func (a *Analyzer) monthlyBar() *charts.Bar {
	s := a.Summary()
	months := aggregate.Months(s)
	payees := aggregate.PayeesByTotal(s)

	// payee -> month -> amount
	cells := make(map[string]map[string]int64)
	for _, r := range a.records {
		if cells[r.Payee] == nil {
			cells[r.Payee] = make(map[string]int64)
		}
		cells[r.Payee][r.YearMonth] += r.Amount
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "月別口座振替額（振替先別積み上げ）",
			Subtitle: periodText(months),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Bottom: "0"}),
	)

	bar.SetXAxis(months)
	for _, p := range payees {
		data := make([]opts.BarData, len(months))
		for i, m := range months {
			data[i] = opts.BarData{Value: cells[p][m]}
		}
		bar.AddSeries(p, data)
	}
	bar.SetSeriesOptions(charts.WithBarChartOpts(opts.BarChart{Stack: "total"}))
	return bar
}

// payeePie builds the monthly-average pie per payee.
func (a *Analyzer) payeePie() *charts.Pie {
	s := a.Summary()
	months := aggregate.Months(s)

	pie := charts.NewPie()
	pie.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "振替先別月平均額",
			Subtitle: periodText(months),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)

	var data []opts.PieData
	for _, p := range aggregate.PayeesByTotal(s) {
		data = append(data, opts.PieData{
			Name:  p,
			Value: s.ByPayee[p] / int64(s.MonthCount),
		})
	}
	pie.AddSeries("月平均", data).SetSeriesOptions(
		charts.WithLabelOpts(opts.Label{
			Show:      opts.Bool(true),
			Formatter: "{b}: ¥{c} ({d}%)",
		}),
	)
	return pie
}

func periodText(months []string) string {
	if len(months) == 0 {
		return ""
	}
	return fmt.Sprintf("%s ~ %s (%dヶ月)", months[0], months[len(months)-1], len(months))
}

func (a *Analyzer) counts() (byMonth, byPayee map[string]int) {
	byMonth = make(map[string]int)
	byPayee = make(map[string]int)
	for _, r := range a.records {
		byMonth[r.YearMonth]++
		byPayee[r.Payee]++
	}
	return byMonth, byPayee
}

// yen formats an amount with thousands separators, no currency sign.
func yen(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := false
	if len(s) > 0 && s[0] == '-' {
		neg = true
		s = s[1:]
	}
	var parts []string
	for len(s) > 3 {
		parts = append(parts, s[len(s)-3:])
		s = s[:len(s)-3]
	}
	parts = append(parts, s)

	out := parts[len(parts)-1]
	for i := len(parts) - 2; i >= 0; i-- {
		out += "," + parts[i]
	}
	if neg {
		out = "-" + out
	}
	return out
}
