package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/EmilyTench10/prueba-tecnica-lite-thinking/pkg/export"
	"github.com/EmilyTench10/prueba-tecnica-lite-thinking/pkg/ledger"
	"github.com/EmilyTench10/prueba-tecnica-lite-thinking/pkg/query"
	"github.com/EmilyTench10/prueba-tecnica-lite-thinking/pkg/recorder"
)

func printJSON(w io.Writer, v any) {
	data, _ := json.MarshalIndent(v, "", "  ")
	_, _ = fmt.Fprintln(w, string(data))
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

// runVerifyCmd implements `chainledger verify`.
//
// Exit codes:
//
//	0 = chain intact
//	1 = integrity findings
//	2 = runtime error
func runVerifyCmd(args []string, stdout, stderr io.Writer) int {
	fs, configPath := newFlagSet("verify", stderr)
	jsonOutput := fs.Bool("json", false, "Output the verification result as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ctx := context.Background()
	a, err := openApp(ctx, *configPath, stderr, false)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer a.Close(ctx)

	res, err := a.ledger.Verify(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: verification failed: %v\n", err)
		return 2
	}

	if *jsonOutput {
		printJSON(stdout, res)
	} else if res.Valid {
		_, _ = fmt.Fprintf(stdout, "Ledger OK: %d records, head %s\n", res.TotalRecords, res.HeadHash)
	} else {
		_, _ = fmt.Fprintf(stdout, "Ledger INVALID: %d findings in %d records\n", len(res.Errors), res.TotalRecords)
		for _, f := range res.Errors {
			_, _ = fmt.Fprintf(stdout, "  - #%d %s: %s\n", f.Index, f.Kind, f.Detail)
		}
	}

	if !res.Valid {
		return 1
	}
	return 0
}

// runStatsCmd implements `chainledger stats`.
func runStatsCmd(args []string, stdout, stderr io.Writer) int {
	fs, configPath := newFlagSet("stats", stderr)
	jsonOutput := fs.Bool("json", false, "Output statistics as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ctx := context.Background()
	a, err := openApp(ctx, *configPath, stderr, false)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer a.Close(ctx)

	stats, err := a.ledger.Statistics(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if *jsonOutput {
		printJSON(stdout, stats)
		return 0
	}
	_, _ = fmt.Fprintf(stdout, "Total records: %d\n", stats.TotalRecords)
	_, _ = fmt.Fprintf(stdout, "Chain valid:   %t (%d findings)\n", stats.Valid, stats.Findings)
	if stats.FirstTimestamp != nil {
		_, _ = fmt.Fprintf(stdout, "First record:  %s\n", ledger.FormatTimestamp(*stats.FirstTimestamp))
		_, _ = fmt.Fprintf(stdout, "Last record:   %s\n", ledger.FormatTimestamp(*stats.LastTimestamp))
	}
	for _, tc := range stats.Types {
		_, _ = fmt.Fprintf(stdout, "  %-24s %d\n", tc.Type, tc.Count)
	}
	return 0
}

// runListCmd implements `chainledger list`.
func runListCmd(args []string, stdout, stderr io.Writer) int {
	fs, configPath := newFlagSet("list", stderr)
	var opts query.Options
	fs.StringVar(&opts.Type, "type", "", "Only records of this type")
	fs.StringVar(&opts.Filter, "filter", "", "CEL expression over `record`")
	fs.IntVar(&opts.Limit, "limit", query.DefaultLimit, "Maximum records to print")
	fs.IntVar(&opts.Offset, "offset", 0, "Records to skip")
	jsonOutput := fs.Bool("json", false, "Output the page as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ctx := context.Background()
	a, err := openApp(ctx, *configPath, stderr, false)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer a.Close(ctx)

	engine, err := query.NewEngine(1)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	records, err := a.ledger.GetAll(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	page, err := engine.Apply(ctx, records, opts)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if *jsonOutput {
		printJSON(stdout, page)
		return 0
	}
	for _, r := range page.Records {
		_, _ = fmt.Fprintf(stdout, "#%-6d %s  %-24s %-28s %s\n",
			r.Index, ledger.FormatTimestamp(r.Timestamp), r.Type, r.Actor, shortHash(r.CurrentHash))
	}
	_, _ = fmt.Fprintf(stdout, "%d of %d records\n", len(page.Records), page.Total)
	return 0
}

// runAppendCmd implements `chainledger append`, the operator write path.
// Types outside the catalogue are accepted with a warning.
func runAppendCmd(args []string, stdout, stderr io.Writer) int {
	fs, configPath := newFlagSet("append", stderr)
	recordType := fs.String("type", "", "Record type (REQUIRED)")
	actor := fs.String("actor", "", "Actor (REQUIRED)")
	payloadJSON := fs.String("payload", "{}", "JSON object payload")
	tsFlag := fs.String("timestamp", "", "RFC 3339 timestamp; defaults to now")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if strings.TrimSpace(*recordType) == "" || strings.TrimSpace(*actor) == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --type and --actor are required")
		return 2
	}

	var payload map[string]any
	dec := json.NewDecoder(strings.NewReader(*payloadJSON))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: --payload must be a JSON object: %v\n", err)
		return 2
	}
	var ts time.Time
	if *tsFlag != "" {
		var err error
		if ts, err = time.Parse(time.RFC3339Nano, *tsFlag); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: --timestamp: %v\n", err)
			return 2
		}
	}
	if !recorder.KnownType(*recordType) {
		_, _ = fmt.Fprintf(stderr, "Warning: %q is not a catalogued record type\n", *recordType)
	}

	ctx := context.Background()
	a, err := openApp(ctx, *configPath, stderr, false)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer a.Close(ctx)

	rec, err := a.ledger.Append(ctx, *recordType, *actor, ts, payload)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		if errors.Is(err, ledger.ErrTemporalOrdering) {
			return 1
		}
		return 2
	}
	printJSON(stdout, rec)
	return 0
}

// runExportCmd implements `chainledger export`.
func runExportCmd(args []string, stdout, stderr io.Writer) int {
	fs, configPath := newFlagSet("export", stderr)
	jsonOutput := fs.Bool("json", false, "Output the export result as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ctx := context.Background()
	a, err := openApp(ctx, *configPath, stderr, false)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer a.Close(ctx)

	artStore, err := a.artifactStore(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	res, err := export.NewExporter(a.ledger, artStore).Export(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: export failed: %v\n", err)
		return 2
	}

	if *jsonOutput {
		printJSON(stdout, map[string]any{
			"key":      res.Key,
			"location": res.Location,
			"records":  len(res.Bundle.Records),
			"valid":    res.Bundle.Verification.Valid,
		})
		return 0
	}
	_, _ = fmt.Fprintln(stdout, res.Key)
	return 0
}

// runVerifyBundleCmd implements `chainledger verify-bundle`.
//
// Exit codes:
//
//	0 = bundle verified
//	1 = verification failed
//	2 = runtime error
func runVerifyBundleCmd(args []string, stdout, stderr io.Writer) int {
	fs, configPath := newFlagSet("verify-bundle", stderr)
	key := fs.String("key", "", "Load the bundle from the artifact store instead of a file")
	jsonOutput := fs.Bool("json", false, "Output the report as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ctx := context.Background()
	var (
		report export.Report
		err    error
	)
	switch {
	case *key != "":
		a, openErr := openApp(ctx, *configPath, stderr, false)
		if openErr != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", openErr)
			return 2
		}
		defer a.Close(ctx)
		artStore, storeErr := a.artifactStore(ctx)
		if storeErr != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", storeErr)
			return 2
		}
		report, err = export.NewExporter(a.ledger, artStore).Load(ctx, *key)
	case fs.NArg() == 1:
		data, readErr := os.ReadFile(fs.Arg(0))
		if readErr != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", readErr)
			return 2
		}
		report, err = export.VerifyBundle(ctx, data)
	default:
		_, _ = fmt.Fprintln(stderr, "Usage: chainledger verify-bundle <file> | --key <key>")
		return 2
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		if errors.Is(err, export.ErrMalformedBundle) || errors.Is(err, export.ErrUnsupportedVersion) {
			return 1
		}
		return 2
	}

	if *jsonOutput {
		printJSON(stdout, report)
	} else if report.Valid {
		_, _ = fmt.Fprintf(stdout, "Bundle OK: format %s, %d records, head %s\n",
			report.FormatVersion, report.Verification.TotalRecords, report.Verification.HeadHash)
	} else {
		_, _ = fmt.Fprintf(stdout, "Bundle INVALID: %d findings, head matches: %t\n",
			len(report.Verification.Errors), report.HeadHashMatches)
		for _, f := range report.Verification.Errors {
			_, _ = fmt.Fprintf(stdout, "  - #%d %s: %s\n", f.Index, f.Kind, f.Detail)
		}
	}
	if !report.Valid {
		return 1
	}
	return 0
}

// runResetCmd implements `chainledger reset`. It is refused without --yes.
func runResetCmd(args []string, stdout, stderr io.Writer) int {
	fs, configPath := newFlagSet("reset", stderr)
	yes := fs.Bool("yes", false, "Confirm deleting every record")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if !*yes {
		_, _ = fmt.Fprintln(stderr, "Refusing to reset without --yes")
		return 2
	}

	ctx := context.Background()
	a, err := openApp(ctx, *configPath, stderr, false)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer a.Close(ctx)

	if err := a.ledger.Reset(ctx); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	_, _ = fmt.Fprintln(stdout, "Ledger reset")
	return 0
}
