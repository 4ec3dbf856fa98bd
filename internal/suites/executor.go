package suites

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/signalnine/gradecheck/internal/docker"
	"github.com/signalnine/gradecheck/internal/timeout"
)

// Executor runs one suite file and returns the runner's structured output.
// A non-nil error still comes with whatever output was captured so the
// caller can salvage partial counts.
type Executor interface {
	Execute(ctx context.Context, file string) ([]byte, error)
}

const (
	DefaultExecCommand   = "npx jest {file} --json --silent"
	DefaultDockerCommand = "npx jest {file} --json --silent --outputFile={output}"
	DefaultDockerImage   = "node:20"

	// TargetEnv tells suites where the project under test lives.
	TargetEnv = "GRADECHECK_TARGET"
)

// ExpandCommand splits a command template and substitutes {file} and
// {output} placeholders token by token.
func ExpandCommand(template, file, output string) []string {
	fields := strings.Fields(template)
	for i, f := range fields {
		f = strings.ReplaceAll(f, "{file}", file)
		fields[i] = strings.ReplaceAll(f, "{output}", output)
	}
	return fields
}

// ExecExecutor runs suites as local processes inside Dir.
type ExecExecutor struct {
	Command string
	Dir     string
	Target  string
	Env     []string
}

func (e *ExecExecutor) Execute(ctx context.Context, file string) ([]byte, error) {
	template := e.Command
	if template == "" {
		template = DefaultExecCommand
	}
	args := ExpandCommand(template, file, "")
	if len(args) == 0 {
		return nil, fmt.Errorf("empty test command")
	}
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = e.Dir
	cmd.Env = append(os.Environ(), e.Env...)
	if e.Target != "" {
		cmd.Env = append(cmd.Env, TargetEnv+"="+e.Target)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.Bytes(), nil
	}
	out := stdout.Bytes()
	if len(bytes.TrimSpace(out)) == 0 {
		out = stderr.Bytes()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return out, fmt.Errorf("%s exited with code %d", args[0], exitErr.ExitCode())
	}
	return out, fmt.Errorf("running %s: %w", args[0], err)
}

// DockerExecutor runs suites in a container with Dir mounted at /workspace
// and the target mounted read-only at /target. The runner writes its report
// to a scratch mount so container log framing never reaches the parser.
type DockerExecutor struct {
	Image   string
	Command string
	Dir     string
	Target  string
	Env     map[string]string
	Timeout time.Duration
}

const containerReport = "/results/report.json"

func (e *DockerExecutor) Execute(ctx context.Context, file string) ([]byte, error) {
	scratch, err := os.MkdirTemp("", "gradecheck-suite-")
	if err != nil {
		return nil, fmt.Errorf("creating scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	template := e.Command
	if template == "" {
		template = DefaultDockerCommand
	}
	image := e.Image
	if image == "" {
		image = DefaultDockerImage
	}
	env := map[string]string{"CI": "true"}
	for k, v := range e.Env {
		env[k] = v
	}
	mounts := []docker.Mount{{Source: scratch, Target: "/results"}}
	if e.Target != "" {
		mounts = append(mounts, docker.Mount{Source: e.Target, Target: "/target", ReadOnly: true})
		env[TargetEnv] = "/target"
	}
	limit := e.Timeout
	if limit <= 0 {
		limit = 5 * time.Minute
	}

	res, err := docker.RunContainer(ctx, &docker.RunOpts{
		Image:       image,
		Command:     ExpandCommand(template, filepath.ToSlash(file), containerReport),
		WorkDir:     e.Dir,
		Env:         env,
		Timeout:     limit,
		ExtraMounts: mounts,
		LogTail:     "500",
	})
	if err != nil {
		return nil, err
	}
	out, readErr := os.ReadFile(filepath.Join(scratch, filepath.Base(containerReport)))
	if readErr != nil {
		out = res.Logs
	}
	if res.TimedOut {
		return out, &timeout.Error{Op: "container " + file, After: limit}
	}
	if res.ExitCode != 0 {
		return out, fmt.Errorf("container exited with code %d", res.ExitCode)
	}
	if readErr != nil {
		return out, fmt.Errorf("reading container report: %w", readErr)
	}
	return out, nil
}
