package report

import (
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/Sumatoshi-tech/gitrecommender/pkg/persist"
)

// Output formats.
const (
	FormatText = "table"
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatPlot = "plot"
)

// ErrUnknownFormat is returned by Write for unsupported formats.
var ErrUnknownFormat = errors.New("unknown report format")

const (
	chartWidth   = "1200px"
	chartHeight  = "500px"
	xAxisRotate  = 45
	commitsColor = "#5470c6"
	touchesColor = "#91cc75"
)

// Write renders the summary in the given format.
func Write(w io.Writer, s Summary, format string, colored bool) error {
	switch format {
	case FormatText, "":
		return WriteText(w, s, colored)
	case FormatJSON, FormatYAML:
		codec, err := persist.CodecFor(format)
		if err != nil {
			return err
		}

		return codec.Encode(w, s)
	case FormatPlot:
		return WritePlot(w, s)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// WriteText prints headline numbers and the top tables.
func WriteText(w io.Writer, s Summary, colored bool) error {
	heading := color.New(color.FgCyan, color.Bold)
	if !colored {
		heading.DisableColor()
	}

	_, err := heading.Fprintln(w, "Affinity store")
	if err != nil {
		return fmt.Errorf("write summary: %w", err)
	}

	_, err = fmt.Fprintf(w, "  authors: %s\n  files: %s\n  commits: %s\n  interactions: %s\n  checkpoint: %s\n\n",
		humanize.Comma(int64(s.Authors)),
		humanize.Comma(int64(s.Files)),
		humanize.Comma(int64(s.Commits)),
		humanize.Comma(int64(s.Interactions)),
		s.LastCommit,
	)
	if err != nil {
		return fmt.Errorf("write summary: %w", err)
	}

	authors := newTable()
	authors.AppendHeader(table.Row{"Author", "Commits", "Files"})

	for _, a := range s.TopAuthors {
		authors.AppendRow(table.Row{a.Name, humanize.Comma(int64(a.Commits)), humanize.Comma(int64(a.Files))})
	}

	files := newTable()
	files.AppendHeader(table.Row{"File", "Language", "Authors", "Touches"})

	for _, f := range s.TopFiles {
		files.AppendRow(table.Row{f.Path, f.Language, f.Authors, humanize.Comma(int64(f.Touches))})
	}

	langs := newTable()
	langs.AppendHeader(table.Row{"Language", "Files"})

	for _, l := range s.Languages {
		langs.AppendRow(table.Row{l.Language, l.Files})
	}

	for _, section := range []struct {
		title string
		tbl   table.Writer
	}{
		{"Top authors", authors},
		{"Top files", files},
		{"Languages", langs},
	} {
		_, err = heading.Fprintln(w, section.title)
		if err == nil {
			_, err = fmt.Fprintf(w, "%s\n\n", section.tbl.Render())
		}

		if err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}

	return nil
}

func newTable() table.Writer {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	tbl.Style().Options.SeparateColumns = false
	tbl.Style().Options.DrawBorder = false

	return tbl
}

// WritePlot renders the top authors and files as an HTML bar chart page.
func WritePlot(w io.Writer, s Summary) error {
	authorNames := make([]string, len(s.TopAuthors))
	authorCommits := make([]opts.BarData, len(s.TopAuthors))

	for i, a := range s.TopAuthors {
		authorNames[i] = a.Name
		authorCommits[i] = opts.BarData{Value: a.Commits}
	}

	filePaths := make([]string, len(s.TopFiles))
	fileTouches := make([]opts.BarData, len(s.TopFiles))

	for i, f := range s.TopFiles {
		filePaths[i] = f.Path
		fileTouches[i] = opts.BarData{Value: f.Touches}
	}

	authors := newBar("Top authors", "Commits per author", authorNames)
	authors.AddSeries("Commits", authorCommits, charts.WithItemStyleOpts(opts.ItemStyle{Color: commitsColor}))

	files := newBar("Top files", "Commits touching each file", filePaths)
	files.AddSeries("Touches", fileTouches, charts.WithItemStyleOpts(opts.ItemStyle{Color: touchesColor}))

	page := components.NewPage()
	page.PageTitle = "gitrecommender stats"
	page.AddCharts(authors, files)

	err := page.Render(w)
	if err != nil {
		return fmt.Errorf("render plot: %w", err)
	}

	return nil
}

func newBar(title, subtitle string, labels []string) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle, Left: "center"}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Rotate: xAxisRotate, Interval: "0"}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
	)
	bar.SetXAxis(labels)

	return bar
}
