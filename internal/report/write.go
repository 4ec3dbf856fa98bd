package report

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/signalnine/gradecheck/internal/result"
)

// ArtifactWriteError means a final artifact could not be written. It is
// fatal to the run.
type ArtifactWriteError struct {
	Path string
	Err  error
}

func (e *ArtifactWriteError) Error() string {
	return fmt.Sprintf("writing %s: %v", e.Path, e.Err)
}

func (e *ArtifactWriteError) Unwrap() error { return e.Err }

// Write renders rep into dir as grading-report.json and GRADING_REPORT.md.
// Both are rendered before either is written so a rendering failure leaves
// no partial pair behind.
func Write(dir string, rep *Report) error {
	var js, md bytes.Buffer
	if err := WriteJSON(rep, &js); err != nil {
		return &ArtifactWriteError{Path: filepath.Join(dir, result.ReportJSONFile), Err: err}
	}
	if err := WriteMarkdown(rep, &md); err != nil {
		return &ArtifactWriteError{Path: filepath.Join(dir, result.ReportMarkdownFile), Err: err}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &ArtifactWriteError{Path: dir, Err: err}
	}
	for name, data := range map[string][]byte{
		result.ReportJSONFile:     js.Bytes(),
		result.ReportMarkdownFile: md.Bytes(),
	} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return &ArtifactWriteError{Path: path, Err: err}
		}
	}
	return nil
}

// Read loads a previously written grading-report.json.
func Read(dir string) (*Report, error) {
	var rep Report
	if err := result.ReadRecord(dir, result.ReportJSONFile, &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}
