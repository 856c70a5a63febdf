package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/joescharf/tagger/internal/models"
	"github.com/joescharf/tagger/internal/tagging"
)

// UI provides colored output and respects verbose/dry-run/json modes.
type UI struct {
	Verbose bool
	DryRun  bool
	JSON    bool
	Out     io.Writer
	ErrOut  io.Writer
}

// New creates a UI with default stdout/stderr writers.
func New() *UI {
	return &UI{
		Out:    os.Stdout,
		ErrOut: os.Stderr,
	}
}

var (
	infoPrefix    = color.New(color.FgHiBlue).Sprint("i")
	successPrefix = color.New(color.FgHiGreen).Sprint("\u2713")
	warningPrefix = color.New(color.FgHiYellow).Sprint("\u26a0")
	errorPrefix   = color.New(color.FgHiRed).Sprint("\u2717")
	verbosePrefix = color.New(color.FgHiBlue).Sprint("  \u2192")
	cyan          = color.New(color.FgHiCyan).SprintFunc()
	green         = color.New(color.FgHiGreen).SprintFunc()
	yellow        = color.New(color.FgHiYellow).SprintFunc()
	red           = color.New(color.FgHiRed).SprintFunc()
)

// Cyan returns a cyan-colored string.
func Cyan(s string) string { return cyan(s) }

// KindColor colors a result message by outcome.
func KindColor(message string) string {
	switch message {
	case tagging.MessageSuccess:
		return green(message)
	case tagging.ExistsKind:
		return yellow(message)
	case "":
		return message
	default:
		return red(message)
	}
}

func (u *UI) Info(format string, a ...any) {
	fmt.Fprintf(u.Out, "%s %s\n", infoPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) Success(format string, a ...any) {
	fmt.Fprintf(u.Out, "%s %s\n", successPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) Warning(format string, a ...any) {
	fmt.Fprintf(u.ErrOut, "%s %s\n", warningPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) Error(format string, a ...any) {
	fmt.Fprintf(u.ErrOut, "%s %s\n", errorPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) VerboseLog(format string, a ...any) {
	if u.Verbose {
		fmt.Fprintf(u.Out, "%s %s\n", verbosePrefix, fmt.Sprintf(format, a...))
	}
}

func (u *UI) DryRunMsg(format string, a ...any) {
	if u.DryRun {
		u.Warning("[DRY-RUN] "+format, a...)
	}
}

// Table creates a new tablewriter configured with consistent styling.
func (u *UI) Table(headers []string) *tablewriter.Table {
	table := tablewriter.NewTable(u.Out,
		tablewriter.WithHeaderAlignment(tw.AlignLeft),
		tablewriter.WithRowAlignment(tw.AlignLeft),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Lines:      tw.LinesNone,
				Separators: tw.SeparatorsNone,
			},
		}),
		tablewriter.WithPadding(tw.Padding{Left: "", Right: "  "}),
	)
	table.Header(headers)
	return table
}

// PrintJSON writes v as indented JSON to Out.
func (u *UI) PrintJSON(v any) error {
	enc := json.NewEncoder(u.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Result reports the outcome of a mutating operation and returns the failure as
// an error. In JSON mode the Result itself is printed.
func (u *UI) Result(action string, r tagging.Result) error {
	if u.JSON {
		if err := u.PrintJSON(r); err != nil {
			return err
		}
		return r.Err()
	}
	if r.Success {
		if r.ID != 0 {
			u.Success("%s %s", action, Cyan("#"+strconv.FormatUint(r.ID, 10)))
		} else {
			u.Success("%s", action)
		}
		return nil
	}
	switch r.Message {
	case tagging.ExistsKind:
		u.Error("%s: %s (tag #%d)", action, KindColor(r.Message), r.ID)
	case tagging.NotExistsKind:
		u.Error("%s: %s %s", action, KindColor(r.Message), r.Tag)
	case tagging.MissingParamsKind:
		u.Error("%s: %s %s", action, KindColor(r.Message), r.Need)
	default:
		u.Error("%s: %s", action, KindColor(r.Message))
	}
	return r.Err()
}

// TagTable renders tags as a table, or as JSON in JSON mode.
func (u *UI) TagTable(res tagging.ListResult[models.Tag]) error {
	if u.JSON {
		return u.PrintJSON(res)
	}
	if len(res.List) == 0 {
		u.Info("No tags found")
		return nil
	}
	table := u.Table([]string{"ID", "NAME", "DESCRIPTION", "CREATED"})
	for _, t := range res.List {
		_ = table.Append([]string{
			strconv.FormatUint(t.ID, 10),
			Cyan(t.Name),
			t.Desc,
			t.CreatedAt.Local().Format(time.DateTime),
		})
	}
	if err := table.Render(); err != nil {
		return err
	}
	u.footer(len(res.List), res.Total)
	return nil
}

// InstanceTable renders instance ids, or JSON in JSON mode.
func (u *UI) InstanceTable(res tagging.ListResult[uint64]) error {
	if u.JSON {
		return u.PrintJSON(res)
	}
	if len(res.List) == 0 {
		u.Info("No instances found")
		return nil
	}
	table := u.Table([]string{"INSTANCE"})
	for _, id := range res.List {
		_ = table.Append([]string{strconv.FormatUint(id, 10)})
	}
	if err := table.Render(); err != nil {
		return err
	}
	u.footer(len(res.List), res.Total)
	return nil
}

func (u *UI) footer(shown int, total *int) {
	if total != nil {
		fmt.Fprintf(u.Out, "\n%d shown, %d total\n", shown, *total)
	}
}
