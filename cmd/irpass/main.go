// Command irpass runs the Angora instrumentation pass over a JSON-encoded
// ir.Module, mirroring cmd/wazero's doMain(stdOut, stdErr) split so the
// driving logic stays unit-testable independent of os.Args/os.Exit.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/cispa/ampfuzz/internal/angora"
	"github.com/cispa/ampfuzz/ir"
)

func main() {
	os.Exit(doMain(os.Stdout, os.Stderr))
}

// doMain is separated out for the purpose of unit testing.
func doMain(stdOut, stdErr io.Writer) int {
	flag.CommandLine.SetOutput(stdErr)

	var (
		inPath    string
		outPath   string
		cfgOut    string
		abiList   string
		exploit   string
		track     bool
		baseID    uint
	)
	flag.StringVar(&inPath, "in", "", "path to the JSON-encoded input ir.Module.")
	flag.StringVar(&outPath, "out", "", "path to write the JSON-encoded instrumented ir.Module.")
	flag.StringVar(&cfgOut, "cfg-out", "", "path to write the track-mode CFG JSON (required with -track).")
	flag.StringVar(&abiList, "angora-dfsan-abilist", "", "path to the abi-list file classifying cmpfn/socket/source/sink functions.")
	flag.StringVar(&exploit, "angora-exploitation-list", "", "path to the exploitation-list file classifying i0-i4/all operands.")
	flag.BoolVar(&track, "track", false, "run in track mode (TrackMode pass flag) instead of fast mode.")
	flag.UintVar(&baseID, "base_id", 0, "xor mask applied by the upstream id-assignment pass.")
	flag.Parse()

	if inPath == "" || outPath == "" {
		fmt.Fprintln(stdErr, "missing required -in/-out path")
		printUsage(stdErr)
		return 1
	}
	if track && cfgOut == "" {
		fmt.Fprintln(stdErr, "-track requires -cfg-out")
		return 1
	}

	cfg, err := angora.LoadConfigFromEnv()
	if err != nil {
		fmt.Fprintf(stdErr, "error loading config: %v\n", err)
		return 1
	}
	cfg.ABIListPath = abiList
	cfg.ExploitListPath = exploit
	cfg.CFGOutPath = cfgOut
	cfg.BaseID = uint32(baseID)
	if track {
		cfg.Mode = angora.ModeTrack
	}

	data, err := os.ReadFile(inPath)
	if err != nil {
		fmt.Fprintf(stdErr, "error reading %s: %v\n", inPath, err)
		return 1
	}
	mod, err := ir.DecodeModule(data)
	if err != nil {
		fmt.Fprintf(stdErr, "error decoding module: %v\n", err)
		return 1
	}

	cats, err := loadCategoryList(abiList, exploit)
	if err != nil {
		fmt.Fprintf(stdErr, "error loading category lists: %v\n", err)
		return 1
	}

	res, err := angora.Run(mod, cats, cfg, stdErr)
	if err != nil {
		fmt.Fprintf(stdErr, "error running pass: %v\n", err)
		return 1
	}

	out, err := ir.EncodeModule(mod)
	if err != nil {
		fmt.Fprintf(stdErr, "error encoding instrumented module: %v\n", err)
		return 1
	}
	if err := os.WriteFile(outPath, out, 0o644); err != nil {
		fmt.Fprintf(stdErr, "error writing %s: %v\n", outPath, err)
		return 1
	}

	if res.CFG != nil {
		cfgData, err := json.MarshalIndent(res.CFG, "", "  ")
		if err != nil {
			fmt.Fprintf(stdErr, "error encoding CFG: %v\n", err)
			return 1
		}
		if err := os.WriteFile(cfgOut, cfgData, 0o644); err != nil {
			fmt.Fprintf(stdErr, "error writing %s: %v\n", cfgOut, err)
			return 1
		}
	}

	return 0
}

// loadCategoryList reads the abi-list and exploitation-list files in a
// minimal line format, not clang's full SpecialCaseList syntax: blank
// lines and "#"-prefixed lines are skipped, and every other line is read
// as "symbolname:category", split at its first ':' (spec.md §1 "out of
// scope": parsing itself is an external collaborator's format, so only the
// resulting name->categories membership table is built here).
func loadCategoryList(paths ...string) (*angora.CategoryList, error) {
	entries := map[string][]string{}
	for _, p := range paths {
		if p == "" {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		for _, line := range splitLines(string(data)) {
			name, cat, ok := splitCaseListLine(line)
			if !ok {
				continue
			}
			entries[name] = append(entries[name], cat)
		}
	}
	return angora.NewCategoryList(entries), nil
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

func splitCaseListLine(line string) (name, category string, ok bool) {
	for i := 0; i < len(line); i++ {
		if line[i] == '#' && i == 0 {
			return "", "", false
		}
	}
	for i := 0; i < len(line); i++ {
		if line[i] == ':' {
			return line[:i], line[i+1:], i > 0 && i < len(line)-1
		}
	}
	return "", "", false
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "irpass -in <module.json> -out <instrumented.json> [-track -cfg-out <cfg.json>] [-angora-dfsan-abilist <path>] [-angora-exploitation-list <path>]")
	flag.PrintDefaults()
}
