// Package parser turns raw test runner output into a result summary.
package parser

import (
	"encoding/xml"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/yusufkaraaslan/lazy-bird/internal/models"
)

// Summary is the outcome extracted from a finished run.
type Summary struct {
	Result      string
	TestsRun    int
	TestsPassed int
	TestsFailed int
}

type parseFunc func(output string) (Summary, bool)

// strategies holds per-framework output parsers. gdUnit4 has none: its
// counts come from the JUnit report.
var strategies = map[string]parseFunc{
	models.FrameworkGUT: parseGut,
}

// Parse extracts a summary from a finished run. A readable JUnit report
// wins over everything; otherwise the framework's output strategy, then
// the generic heuristics. Parse never fails: with no recognizable counts
// the result comes from scanning the output for a pass marker.
func Parse(framework, output, reportPath string) Summary {
	if s, ok := parseJUnitReport(reportPath); ok {
		return s
	}
	if parse, ok := strategies[framework]; ok {
		if s, ok := parse(output); ok {
			return s
		}
	}
	return parseGeneric(output)
}

// junitSuite covers both a <testsuite> element and a <testsuites> wrapper.
type junitSuite struct {
	Tests    int          `xml:"tests,attr"`
	Failures int          `xml:"failures,attr"`
	Errors   int          `xml:"errors,attr"`
	Suites   []junitSuite `xml:"testsuite"`
}

func parseJUnitReport(reportPath string) (Summary, bool) {
	if reportPath == "" {
		return Summary{}, false
	}
	data, err := os.ReadFile(reportPath)
	if err != nil {
		return Summary{}, false
	}
	var root junitSuite
	if err := xml.Unmarshal(data, &root); err != nil {
		return Summary{}, false
	}
	run, failed := suiteTotals(root)
	if run == 0 {
		return Summary{}, false
	}
	return Summary{
		Result:      resultFor(failed == 0),
		TestsRun:    run,
		TestsPassed: run - failed,
		TestsFailed: failed,
	}, true
}

// suiteTotals sums leaf suites so a wrapper element with aggregate
// attributes is not counted twice.
func suiteTotals(s junitSuite) (run, failed int) {
	if len(s.Suites) == 0 {
		return s.Tests, s.Failures + s.Errors
	}
	for _, child := range s.Suites {
		r, f := suiteTotals(child)
		run += r
		failed += f
	}
	return run, failed
}

var gutPattern = regexp.MustCompile(`Tests run:\s*(\d+)\s+Passing:\s*(\d+)\s+Failing:\s*(\d+)`)

func parseGut(output string) (Summary, bool) {
	m := gutPattern.FindStringSubmatch(output)
	if m == nil {
		return Summary{}, false
	}
	run, _ := strconv.Atoi(m[1])
	passed, _ := strconv.Atoi(m[2])
	failed, _ := strconv.Atoi(m[3])
	return Summary{
		Result:      resultFor(failed == 0),
		TestsRun:    run,
		TestsPassed: passed,
		TestsFailed: failed,
	}, true
}

var heuristicPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(\d+)\s+tests.*(\d+)\s+passed.*(\d+)\s+failed`),
	regexp.MustCompile(`(?i)Tests:\s*(\d+),\s*Passed:\s*(\d+),\s*Failed:\s*(\d+)`),
	regexp.MustCompile(`(?i)PASSED.*=\s*(\d+)`),
}

func parseGeneric(output string) Summary {
	var s Summary
	for _, re := range heuristicPatterns {
		m := re.FindStringSubmatch(output)
		if m == nil {
			continue
		}
		if len(m) == 4 {
			s.TestsRun, _ = strconv.Atoi(m[1])
			s.TestsPassed, _ = strconv.Atoi(m[2])
			s.TestsFailed, _ = strconv.Atoi(m[3])
		} else {
			s.TestsRun, _ = strconv.Atoi(m[1])
			s.TestsPassed = s.TestsRun
		}
		break
	}
	if s.TestsRun > 0 {
		s.Result = resultFor(s.TestsFailed == 0)
		return s
	}
	s.Result = resultFor(strings.Contains(output, "All tests passed") || strings.Contains(output, "OK"))
	return s
}

func resultFor(passed bool) string {
	if passed {
		return models.ResultPassed
	}
	return models.ResultFailed
}
