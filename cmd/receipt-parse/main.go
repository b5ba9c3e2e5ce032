// Command receipt-parse runs the parsing engine over OCR text and prints the record as JSON.
package main

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/shopspring/decimal"

	"github.com/zombor/receipt-processor/internal/parsing"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

const (
	exitOK     = 0
	exitError  = 1
	exitNoText = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := ff.NewFlagSet("receipt-parse")
	var (
		snapTolerance = fs.StringLong("snap-tolerance", parsing.DefaultSnapTolerance.String(), "Largest difference snapped between a printed and computed line total")
		compact       = fs.BoolLong("compact", "Print JSON on a single line")
		verbose       = fs.BoolLong("verbose", "Log engine decisions to stderr")
		showVersion   = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, args, ff.WithEnvVarPrefix("RECEIPT_PARSE")); err != nil {
		fmt.Fprintf(stderr, "%s\n", ffhelp.Flags(fs, "receipt-parse [FLAGS] [FILE]"))
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitError
	}
	if *showVersion {
		fmt.Fprintln(stdout, version)
		return exitOK
	}

	tolerance, err := decimal.NewFromString(*snapTolerance)
	if err != nil || tolerance.IsNegative() {
		fmt.Fprintf(stderr, "error: invalid snap tolerance %q\n", *snapTolerance)
		return exitError
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	text, err := readInput(fs.GetArgs(), stdin)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitError
	}

	engine := parsing.NewEngine(parsing.WithSnapTolerance(tolerance), parsing.WithLogger(logger))
	record, err := engine.Parse(text)
	if errors.Is(err, parsing.ErrNoText) {
		fmt.Fprintln(stderr, err)
		return exitNoText
	}
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitError
	}

	enc := json.NewEncoder(stdout)
	if !*compact {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(record); err != nil {
		fmt.Fprintf(stderr, "error: encoding record: %v\n", err)
		return exitError
	}
	return exitOK
}

// readInput reads the named file, or stdin when no file or "-" is given
func readInput(args []string, stdin io.Reader) (string, error) {
	if len(args) > 1 {
		return "", fmt.Errorf("expected at most one file, got %d", len(args))
	}
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", args[0], err)
	}
	return string(data), nil
}
