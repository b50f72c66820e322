package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Result captures one converter invocation.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Converter downloads sourceURL and writes the converted file into outputDir.
// It blocks until the external tool exits.
type Converter interface {
	Convert(ctx context.Context, sourceURL, outputDir string) (Result, error)
}

// ConverterFunc adapts a function to Converter.
type ConverterFunc func(ctx context.Context, sourceURL, outputDir string) (Result, error)

func (f ConverterFunc) Convert(ctx context.Context, sourceURL, outputDir string) (Result, error) {
	return f(ctx, sourceURL, outputDir)
}

// ConversionError reports a failed converter run with its diagnostic output.
type ConversionError struct {
	ExitCode int
	Message  string
	Err      error
}

func (e *ConversionError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("conversion failed (exit %d): %s", e.ExitCode, e.Message)
}

func (e *ConversionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewConversionError builds an error from a failed run. The message prefers
// stderr, then stdout, then err itself.
func NewConversionError(res Result, err error) *ConversionError {
	msg := strings.TrimSpace(res.Stderr)
	if msg == "" {
		msg = strings.TrimSpace(res.Stdout)
	}
	if msg == "" && err != nil {
		msg = err.Error()
	}
	if msg == "" {
		msg = fmt.Sprintf("exit status %d", res.ExitCode)
	}
	return &ConversionError{ExitCode: res.ExitCode, Message: msg, Err: err}
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// execRunner executes commands via os/exec.
type execRunner struct{}

func (r execRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}
	return result, nil
}

// Command runs an external downloader such as spotdl:
//
//	<binary> <url> --output <dir> [extra args...]
type Command struct {
	Binary    string
	ExtraArgs []string
	// Timeout bounds a single run. Zero means no limit.
	Timeout time.Duration

	runner commandRunner
}

func NewCommand(binary string, extraArgs []string, timeout time.Duration) *Command {
	return &Command{
		Binary:    binary,
		ExtraArgs: extraArgs,
		Timeout:   timeout,
		runner:    execRunner{},
	}
}

func (c *Command) Convert(ctx context.Context, sourceURL, outputDir string) (Result, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	args := append([]string{sourceURL, "--output", outputDir}, c.ExtraArgs...)
	res, err := c.runner.Run(ctx, c.Binary, args...)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", c.Timeout, err)
			res.Stderr = strings.TrimSpace(res.Stderr + "\n" + err.Error())
		}
		return res, NewConversionError(res, err)
	}
	if res.ExitCode != 0 {
		return res, NewConversionError(res, nil)
	}
	return res, nil
}
