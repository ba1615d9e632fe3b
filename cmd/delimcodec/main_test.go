package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/kong"

	"github.com/FocuswithJustin/delimcodec/core/errors"
	"github.com/FocuswithJustin/delimcodec/core/layout"
	"github.com/FocuswithJustin/delimcodec/internal/archive"
	"github.com/FocuswithJustin/delimcodec/internal/journal"
)

const testLayout = `
field amount {
  terminator ";"
  justify right pad "0" minLength 5
  nil "NIL"
  type int
}
field name {
  separator ","
  escape character "\\"
  charset "US-ASCII"
}
`

// Test helper functions

func writeLayout(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "record.layout")
	if err := os.WriteFile(path, []byte(testLayout), 0644); err != nil {
		t.Fatalf("failed to write layout: %v", err)
	}
	return path
}

func captureStdout(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	old := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = old })
	return &buf
}

func strPtr(s string) *string { return &s }

func TestCLIBuilds(t *testing.T) {
	var cli = CLI
	parser, err := kong.New(&cli, kong.Name("delimcodec"), kong.Exit(func(int) {}))
	if err != nil {
		t.Fatalf("kong.New() error = %v", err)
	}
	dir := t.TempDir()
	layoutPath := writeLayout(t, dir)
	if _, err := parser.Parse([]string{"unparse", "-l", layoutPath, "-f", "amount", "42"}); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cli.Unparse.Field != "amount" || cli.Unparse.Value == nil || *cli.Unparse.Value != "42" {
		t.Errorf("parsed unparse = %+v", cli.Unparse)
	}
}

func TestUnparseCmd_Single(t *testing.T) {
	layoutPath := writeLayout(t, t.TempDir())

	tests := []struct {
		name    string
		cmd     UnparseCmd
		want    string
		wantErr error
	}{
		{
			name: "padded",
			cmd:  UnparseCmd{FieldFlags: FieldFlags{Field: "amount"}, Value: strPtr("42")},
			want: "00042\n",
		},
		{
			name: "nil",
			cmd:  UnparseCmd{FieldFlags: FieldFlags{Field: "amount"}, Nil: true},
			want: "00NIL\n",
		},
		{
			name: "escaped",
			cmd:  UnparseCmd{FieldFlags: FieldFlags{Field: "name"}, Value: strPtr("a,b")},
			want: "a\\,b\n",
		},
		{
			name:    "short sink",
			cmd:     UnparseCmd{FieldFlags: FieldFlags{Field: "amount"}, Value: strPtr("12"), Capacity: 3},
			wantErr: errors.ErrInsufficientSpace,
		},
		{
			name:    "unrepresentable",
			cmd:     UnparseCmd{FieldFlags: FieldFlags{Field: "name"}, Value: strPtr("café")},
			wantErr: errors.ErrUnrepresentable,
		},
		{
			name:    "unknown field",
			cmd:     UnparseCmd{FieldFlags: FieldFlags{Field: "nope"}, Value: strPtr("x")},
			wantErr: errors.ErrNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := captureStdout(t)
			tt.cmd.Layout = layoutPath
			err := tt.cmd.Run()
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Run() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if out.String() != tt.want {
				t.Errorf("output = %q, want %q", out.String(), tt.want)
			}
		})
	}

	cmd := UnparseCmd{FieldFlags: FieldFlags{Layout: layoutPath, Field: "name"}}
	if err := cmd.Run(); err == nil {
		t.Error("Run() without a value succeeded")
	}
}

func TestUnparseCmd_Batch(t *testing.T) {
	dir := t.TempDir()
	layoutPath := writeLayout(t, dir)
	input := filepath.Join(dir, "values.txt.gz")
	output := filepath.Join(dir, "out", "fields.txt.xz")
	journalPath := filepath.Join(dir, "journal.db")

	w, err := archive.Create(input, false)
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range []string{"x,y", "café", "plain"} {
		if err := w.WriteLine(v); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	cmd := UnparseCmd{
		FieldFlags: FieldFlags{Layout: layoutPath, Field: "name"},
		Input:      input,
		Output:     output,
		Journal:    journalPath,
	}
	err = cmd.Run()
	if err == nil || !strings.Contains(err.Error(), "1 of 3 values failed") {
		t.Fatalf("Run() error = %v", err)
	}

	recs, err := archive.ReadAll(output, "")
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, r := range recs {
		got = append(got, r.Value)
	}
	if want := []string{`x\,y`, "", "plain"}; strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("output lines = %q, want %q", got, want)
	}

	j, err := journal.Open(journalPath)
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()
	ctx := context.Background()
	runs, err := j.Runs(ctx, 0)
	if err != nil || len(runs) != 1 {
		t.Fatalf("Runs() = %+v, %v", runs, err)
	}
	if runs[0].Values != 3 || runs[0].Failures != 1 || runs[0].Source != input {
		t.Errorf("run = %+v", runs[0])
	}
	outcomes, err := j.Outcomes(ctx, runs[0].ID)
	if err != nil || len(outcomes) != 1 {
		t.Fatalf("Outcomes() = %+v, %v", outcomes, err)
	}
	if outcomes[0].Index != 1 || outcomes[0].Kind != "UnrepresentableContent" {
		t.Errorf("outcome = %+v", outcomes[0])
	}

	out := captureStdout(t)
	list := JournalListCmd{Journal: journalPath, Limit: 10}
	if err := list.Run(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), runs[0].ID) {
		t.Errorf("journal list = %q", out.String())
	}
	out.Reset()
	list.RunID = runs[0].ID
	if err := list.Run(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "UnrepresentableContent") {
		t.Errorf("journal list --run = %q", out.String())
	}
	list.RunID = "missing"
	if err := list.Run(); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("journal list --run missing error = %v", err)
	}
}

func TestUnescapeCmd_Run(t *testing.T) {
	layoutPath := writeLayout(t, t.TempDir())

	tests := []struct {
		field, raw, want string
	}{
		{"name", `a\,b`, "a,b\n"},
		{"amount", "00042", "42\n"},
		{"amount", "00NIL", "(nil)\n"},
	}
	for _, tt := range tests {
		out := captureStdout(t)
		cmd := UnescapeCmd{FieldFlags: FieldFlags{Layout: layoutPath, Field: tt.field}, Raw: tt.raw}
		if err := cmd.Run(); err != nil {
			t.Fatalf("Run(%q) error = %v", tt.raw, err)
		}
		if out.String() != tt.want {
			t.Errorf("Run(%q) output = %q, want %q", tt.raw, out.String(), tt.want)
		}
	}
}

func TestScanCmd_Run(t *testing.T) {
	layoutPath := writeLayout(t, t.TempDir())
	out := captureStdout(t)

	cmd := ScanCmd{FieldFlags: FieldFlags{Layout: layoutPath, Field: "name"}, Text: `a,b\c`}
	if err := cmd.Run(); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("scan output = %q", out.String())
	}
	if !strings.Contains(lines[1], "separator") || !strings.HasPrefix(lines[1], "1 ") {
		t.Errorf("first match = %q", lines[1])
	}
	if !strings.Contains(lines[2], "escape") || !strings.HasPrefix(lines[2], "3 ") {
		t.Errorf("second match = %q", lines[2])
	}

	out.Reset()
	cmd = ScanCmd{FieldFlags: FieldFlags{Layout: layoutPath, Field: "amount"}, Text: "1;2"}
	if err := cmd.Run(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "terminator") {
		t.Errorf("scan output = %q", out.String())
	}
}

func TestLayoutCheckCmd_Run(t *testing.T) {
	dir := t.TempDir()
	layoutPath := writeLayout(t, dir)
	out := captureStdout(t)

	cmd := LayoutCheckCmd{Path: layoutPath}
	if err := cmd.Run(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "2 fields, blake3 ") || !strings.Contains(out.String(), "amount") {
		t.Errorf("check output = %q", out.String())
	}

	for _, emit := range []string{"dsl", "xml"} {
		out.Reset()
		cmd := LayoutCheckCmd{Path: layoutPath, Emit: emit}
		if err := cmd.Run(); err != nil {
			t.Fatal(err)
		}
		var (
			specs []layout.Spec
			err   error
		)
		if emit == "xml" {
			specs, err = layout.ParseXML(out.Bytes())
		} else {
			specs, err = layout.Parse(out.String())
		}
		if err != nil || len(specs) != 2 {
			t.Errorf("re-emitted %s layout = %d specs, %v", emit, len(specs), err)
		}
	}

	bad := filepath.Join(dir, "bad.layout")
	os.WriteFile(bad, []byte(`field a { separator "," escape character "," }`), 0644)
	if err := (&LayoutCheckCmd{Path: bad}).Run(); err == nil {
		t.Error("Run() accepted an escape character equal to a delimiter without an escape-escape")
	}
}

func TestVersionCmd_Run(t *testing.T) {
	out := captureStdout(t)
	if err := (&VersionCmd{}).Run(); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out.String(), "delimcodec version "+version) {
		t.Errorf("output = %q", out.String())
	}
}
