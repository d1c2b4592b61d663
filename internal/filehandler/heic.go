package filehandler

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"
)

// Converter writes a JPEG rendition of the HEIC file at src to dst.
type Converter interface {
	Convert(ctx context.Context, src, dst string) error
}

// Placeholders substituted into CommandConverter arguments.
const (
	PlaceholderSrc = "{src}"
	PlaceholderDst = "{dst}"
)

// Converter presets.
const (
	ConverterSips   = "sips"
	ConverterFFmpeg = "ffmpeg"
)

// CommandConverter runs an external program. Success is a zero exit code
// and a non-empty file at dst.
type CommandConverter struct {
	Program string
	Args    []string
}

// NewCommandConverter returns the preset named by name ("sips" or "ffmpeg").
// A non-empty command overrides the preset; its first element is the program.
func NewCommandConverter(name string, command []string) (*CommandConverter, error) {
	if len(command) > 0 {
		return &CommandConverter{Program: command[0], Args: command[1:]}, nil
	}
	switch strings.ToLower(name) {
	case "", ConverterSips:
		// macOS built-in
		return &CommandConverter{
			Program: "sips",
			Args:    []string{"-s", "format", "jpeg", PlaceholderSrc, "--out", PlaceholderDst},
		}, nil
	case ConverterFFmpeg:
		return &CommandConverter{
			Program: "ffmpeg",
			Args:    []string{"-y", "-i", PlaceholderSrc, "-frames:v", "1", "-q:v", "2", PlaceholderDst},
		}, nil
	default:
		return nil, fmt.Errorf("unknown HEIC converter %q", name)
	}
}

// Convert implements Converter.
func (c *CommandConverter) Convert(ctx context.Context, src, dst string) error {
	program, err := exec.LookPath(c.Program)
	if err != nil {
		return fmt.Errorf("%w: %s not found: %v", ErrConversion, c.Program, err)
	}

	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		a = strings.ReplaceAll(a, PlaceholderSrc, src)
		args[i] = strings.ReplaceAll(a, PlaceholderDst, dst)
	}

	log.Debug().
		Str("program", program).
		Strs("args", args).
		Msg("Running HEIC converter")

	cmd := exec.CommandContext(ctx, program, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %v: %s", ErrConversion, err, strings.TrimSpace(string(output)))
	}

	info, err := os.Stat(dst)
	if err != nil || info.Size() == 0 {
		return fmt.Errorf("%w: converter produced no output at %s", ErrConversion, dst)
	}
	return nil
}
