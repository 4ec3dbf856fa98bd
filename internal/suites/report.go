package suites

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Report is the subset of a jest --json document the aggregator reads.
type Report struct {
	Success        *bool        `json:"success"`
	NumTotalTests  int          `json:"numTotalTests"`
	NumPassedTests int          `json:"numPassedTests"`
	NumFailedTests int          `json:"numFailedTests"`
	TestResults    []fileResult `json:"testResults"`
}

type fileResult struct {
	Message   string `json:"message"`
	PerfStats struct {
		Runtime int64 `json:"runtime"`
	} `json:"perfStats"`
}

func (r *Report) passed() bool { return r.Success != nil && *r.Success }

func (r *Report) runtimeMS() int64 {
	if len(r.TestResults) == 0 {
		return 0
	}
	return r.TestResults[0].PerfStats.Runtime
}

func (r *Report) message() string {
	if len(r.TestResults) == 0 {
		return ""
	}
	return r.TestResults[0].Message
}

// ParseReport decodes one test runner result document.
func ParseReport(data []byte) (*Report, error) {
	var rep Report
	if err := json.Unmarshal(bytes.TrimSpace(data), &rep); err != nil {
		return nil, fmt.Errorf("decoding test report: %w", err)
	}
	if rep.Success == nil {
		return nil, fmt.Errorf("test report has no success field")
	}
	if rep.NumTotalTests < 0 || rep.NumPassedTests < 0 || rep.NumFailedTests < 0 {
		return nil, fmt.Errorf("test report has negative counts")
	}
	return &rep, nil
}

var successKey = []byte(`"success"`)

// Salvage looks for a result document embedded in noisy output from a run
// that exited with an error. It tries each opening brace before the first
// "success" key against the last closing brace.
func Salvage(output []byte) (*Report, bool) {
	key := bytes.Index(output, successKey)
	end := bytes.LastIndexByte(output, '}')
	if key < 0 || end < key {
		return nil, false
	}
	for start := 0; start < key; {
		i := bytes.IndexByte(output[start:key], '{')
		if i < 0 {
			break
		}
		if rep, err := ParseReport(output[start+i : end+1]); err == nil {
			return rep, true
		}
		start += i + 1
	}
	return nil, false
}
