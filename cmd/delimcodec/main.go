// Command delimcodec serializes values into delimited fields described by a
// layout file, and inspects layouts, raw fields and failure journals.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"

	"github.com/FocuswithJustin/delimcodec/core/codec"
	"github.com/FocuswithJustin/delimcodec/core/errors"
	"github.com/FocuswithJustin/delimcodec/core/layout"
	"github.com/FocuswithJustin/delimcodec/core/scan"
	"github.com/FocuswithJustin/delimcodec/core/sink"
	"github.com/FocuswithJustin/delimcodec/internal/archive"
	"github.com/FocuswithJustin/delimcodec/internal/journal"
	"github.com/FocuswithJustin/delimcodec/internal/logging"
	"github.com/FocuswithJustin/delimcodec/internal/server"
)

const version = "0.1.0"

// stdout receives command output.
var stdout io.Writer = os.Stdout

// CLI defines the command-line interface for delimcodec.
var CLI struct {
	LogLevel  string `name:"log-level" help:"Log level (debug, info, warn, error)" default:"warn" env:"DELIMCODEC_LOG_LEVEL"`
	LogFormat string `name:"log-format" help:"Log format (json, text)" default:"text" env:"DELIMCODEC_LOG_FORMAT"`

	Unparse  UnparseCmd   `cmd:"" help:"Serialize a value or a batch of values into a field"`
	Unescape UnescapeCmd  `cmd:"" help:"Recover the value from the raw text of a field"`
	Scan     ScanCmd      `cmd:"" help:"List the markers a field recognises in a text"`
	Layout   LayoutGroup  `cmd:"" help:"Layout operations"`
	Serve    ServeCmd     `cmd:"" help:"Start the HTTP and WebSocket server"`
	Journal  JournalGroup `cmd:"" help:"Failure journal operations"`
	Version  VersionCmd   `cmd:"" help:"Print version information"`
}

// LayoutGroup contains layout operations.
type LayoutGroup struct {
	Check LayoutCheckCmd `cmd:"" help:"Compile a layout and report its fields"`
}

// JournalGroup contains journal operations.
type JournalGroup struct {
	List JournalListCmd `cmd:"" help:"List runs, or the failures of one run"`
}

// FieldFlags selects one field of a layout.
type FieldFlags struct {
	Layout string `short:"l" required:"" help:"Layout file (.xml for XML, anything else for the layout language)" type:"existingfile" env:"DELIMCODEC_LAYOUT"`
	Field  string `short:"f" required:"" help:"Field name"`
}

func (f FieldFlags) load() (*codec.Field, error) {
	fields, err := layout.LoadFields(f.Layout, nil)
	if err != nil {
		return nil, err
	}
	return fields.Get(f.Field)
}

// UnparseCmd serializes values.
type UnparseCmd struct {
	FieldFlags `embed:""`
	Value     *string `arg:"" optional:"" help:"Value to serialize (omit with --input)"`
	Nil       bool    `help:"Write the nil literal instead of a value"`
	Input     string  `short:"i" help:"Batch of newline-separated values; .gz and .xz are decompressed, - is stdin"`
	Output    string  `short:"o" help:"Output file for batch results; .gz and .xz are compressed" default:"-"`
	NilMarker string  `name:"nil-marker" help:"Batch line that stands for a nil value"`
	Capacity  int64   `help:"Sink capacity in characters per value (0 = unbounded)"`
	Journal   string  `help:"SQLite journal recording every failure" env:"DELIMCODEC_JOURNAL" type:"path"`
}

func (c *UnparseCmd) Run() error {
	f, err := c.load()
	if err != nil {
		return err
	}
	if c.Input == "" {
		return c.single(f)
	}
	return c.batch(f)
}

func (c *UnparseCmd) newBuffer(f *codec.Field) *sink.Buffer {
	if c.Capacity > 0 {
		return f.NewBuffer(sink.WithCharLimit(c.Capacity))
	}
	return f.NewBuffer()
}

func (c *UnparseCmd) single(f *codec.Field) error {
	if c.Value == nil && !c.Nil {
		return fmt.Errorf("a value, --nil or --input is required")
	}
	buf := c.newBuffer(f)
	ctx := codec.NewContext(logging.GetLogger())
	var err error
	if c.Nil {
		err = f.UnparseNil(ctx, buf)
	} else {
		err = f.Unparse(ctx, *c.Value, buf)
	}
	if err != nil {
		if buf.Position().Chars > 0 {
			fmt.Fprintf(os.Stderr, "partial output: %q\n", buf.String())
		}
		return err
	}
	_, err = stdout.Write(append(buf.Bytes(), '\n'))
	return err
}

func (c *UnparseCmd) batch(f *codec.Field) error {
	bg := context.Background()
	var (
		j     *journal.Journal
		runID string
		err   error
	)
	if c.Journal != "" {
		if j, err = journal.Open(c.Journal); err != nil {
			return err
		}
		defer j.Close()
		run, err := j.StartRun(bg, c.Layout, c.Input)
		if err != nil {
			return err
		}
		runID = run.ID
	}

	var out *archive.Writer
	if c.Output == "-" {
		out, err = archive.NewWriterTo(stdout, archive.None)
	} else {
		out, err = archive.Create(c.Output, true)
	}
	if err != nil {
		return err
	}

	ctx := codec.NewContext(logging.GetLogger())
	var values, failures int
	iterErr := archive.IterateBatch(c.Input, c.NilMarker, func(rec archive.Record) (bool, error) {
		index := values
		values++
		ctx.Reset()
		buf := c.newBuffer(f)
		var uerr error
		if rec.Nil {
			uerr = f.UnparseNil(ctx, buf)
		} else {
			uerr = f.Unparse(ctx, rec.Value, buf)
		}
		if uerr != nil {
			failures++
			fmt.Fprintf(os.Stderr, "line %d: %v\n", rec.Line, uerr)
			if j != nil {
				if err := j.RecordDiagnostics(bg, runID, index, ctx.Diagnostics()); err != nil {
					return true, err
				}
			}
			// Output line N belongs to input line N; failures leave it empty.
			return false, out.WriteLine("")
		}
		if _, err := out.Write(buf.Bytes()); err != nil {
			return true, err
		}
		return false, out.WriteLine("")
	})
	closeErr := out.Close()
	if j != nil {
		if err := j.FinishRun(bg, runID, values); err != nil {
			return err
		}
	}
	if err := errors.Join(iterErr, closeErr); err != nil {
		return err
	}

	logging.Info("batch complete", "values", values, "failures", failures, "run_id", runID)
	if failures > 0 {
		return fmt.Errorf("%d of %d values failed", failures, values)
	}
	return nil
}

// UnescapeCmd parses the raw text of a field.
type UnescapeCmd struct {
	FieldFlags `embed:""`
	Raw string `arg:"" help:"Raw field text, without its delimiters"`
}

func (c *UnescapeCmd) Run() error {
	f, err := c.load()
	if err != nil {
		return err
	}
	value, isNil, err := f.Parse(c.Raw)
	if err != nil {
		return err
	}
	if isNil {
		fmt.Fprintln(stdout, "(nil)")
		return nil
	}
	fmt.Fprintln(stdout, value)
	return nil
}

// ScanCmd lists marker occurrences.
type ScanCmd struct {
	FieldFlags `embed:""`
	Text string `arg:"" help:"Text to scan"`
}

func (c *ScanCmd) Run() error {
	f, err := c.load()
	if err != nil {
		return err
	}
	var markers *scan.Scanner
	if esc := f.Escaper(); esc != nil {
		markers = esc.Markers()
	} else if markers, err = scan.Default.Get(scan.DelimiterPatterns(f.Delimiters())); err != nil {
		return err
	}

	content := []rune(c.Text)
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "OFFSET\tMARKER\tKINDS")
	for at := 0; at < len(content); {
		m, ok := markers.NextMatch(content, at)
		if !ok {
			break
		}
		fmt.Fprintf(tw, "%d\t%q\t%s\n", m.Start, m.Pattern, m.Kinds)
		at = m.End()
	}
	return tw.Flush()
}

// LayoutCheckCmd compiles a layout.
type LayoutCheckCmd struct {
	Path string `arg:"" help:"Layout file" type:"existingfile"`
	Emit string `help:"Re-emit the layout as dsl or xml"`
}

func (c *LayoutCheckCmd) Run() error {
	specs, err := layout.Load(c.Path)
	if err != nil {
		return err
	}
	fields, err := layout.CompileAll(specs, nil)
	if err != nil {
		return err
	}

	switch c.Emit {
	case "dsl":
		return layout.Format(stdout, specs)
	case "xml":
		return layout.WriteXML(stdout, specs)
	case "":
	default:
		return fmt.Errorf("unknown emit format %q (want dsl or xml)", c.Emit)
	}

	digest, err := layout.Digest(specs)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s: %d fields, blake3 %s\n", c.Path, len(specs), digest)
	for _, f := range fields.All() {
		fmt.Fprintf(stdout, "  %s\n", f)
	}
	return nil
}

// ServeCmd starts the server.
type ServeCmd struct {
	Port           int      `help:"HTTP server port" default:"8080" env:"DELIMCODEC_PORT"`
	Layout         string   `short:"l" required:"" help:"Layout file" type:"existingfile" env:"DELIMCODEC_LAYOUT"`
	Journal        string   `help:"SQLite journal recording every failure" type:"path" env:"DELIMCODEC_JOURNAL"`
	AllowedOrigins []string `name:"allowed-origins" help:"Allowed CORS and WebSocket origins (empty = all)" env:"DELIMCODEC_ALLOWED_ORIGINS"`
	MaxMessageSize int64    `name:"max-message-size" help:"Largest request body or frame in bytes" default:"65536"`
	MaxMessageRate int      `name:"max-message-rate" help:"Frames per second per WebSocket session (0 = unlimited)" default:"100"`
	MaxCapacity    int64    `name:"max-capacity" help:"Largest sink capacity a request may ask for (0 = unbounded)"`
}

func (c *ServeCmd) Run() error {
	cfg := server.Config{
		Port:           c.Port,
		LayoutPath:     c.Layout,
		JournalPath:    c.Journal,
		AllowedOrigins: c.AllowedOrigins,
		MaxMessageSize: c.MaxMessageSize,
		MaxMessageRate: c.MaxMessageRate,
		MaxCapacity:    c.MaxCapacity,
	}
	return server.Start(cfg)
}

// JournalListCmd lists journal runs.
type JournalListCmd struct {
	Journal string `arg:"" help:"Journal file" type:"existingfile" env:"DELIMCODEC_JOURNAL"`
	Limit   int    `help:"Show at most this many runs (0 = all)" default:"20"`
	RunID   string `name:"run" help:"Show the failures of this run instead"`
}

func (c *JournalListCmd) Run() error {
	j, err := journal.Open(c.Journal)
	if err != nil {
		return err
	}
	defer j.Close()
	ctx := context.Background()
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)

	if c.RunID != "" {
		if _, err := j.Run(ctx, c.RunID); err != nil {
			return err
		}
		outcomes, err := j.Outcomes(ctx, c.RunID)
		if err != nil {
			return err
		}
		fmt.Fprintln(tw, "INDEX\tFIELD\tKIND\tEXPECTED\tACTUAL\tBITS\tMESSAGE")
		for _, o := range outcomes {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\t%s\n",
				o.Index, o.Field, o.Kind, count(o.Expected), count(o.Actual), o.PositionBits, o.Message)
		}
		return tw.Flush()
	}

	runs, err := j.Runs(ctx, c.Limit)
	if err != nil {
		return err
	}
	fmt.Fprintln(tw, "ID\tSTARTED\tLAYOUT\tSOURCE\tVALUES\tFAILURES")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\n",
			r.ID, r.StartedAt.Format(time.RFC3339), r.Layout, r.Source, r.Values, r.Failures)
	}
	return tw.Flush()
}

func count(n int) string {
	if n < 0 {
		return "-"
	}
	return fmt.Sprint(n)
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Fprintf(stdout, "delimcodec version %s (sqlite %s)\n", version, journal.DriverType())
	return nil
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("delimcodec"),
		kong.Description("Delimited field codec - escape, pad and serialize values"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	logging.InitLogger(logging.ParseLevel(CLI.LogLevel), logging.ParseFormat(CLI.LogFormat))
	err := ctx.Run(ctx)
	ctx.FatalIfErrorf(err)
}
