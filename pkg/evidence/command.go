package evidence

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
)

// Environment handed to evidence commands.
const (
	EnvStage       = "EVIDENCE_STAGE"
	EnvAPIStage    = "EVIDENCE_API_STAGE"
	EnvReleased    = "EVIDENCE_RELEASED"
	EnvApplication = "APPLICATION_KEY"
	EnvVersion     = "APP_VERSION"
)

var ErrCommandEmpty = fmt.Errorf("evidence command is empty")

// CommandEmitter runs an external command for every transition. The subject is passed through the
// environment on top of the current process's environment.
type CommandEmitter struct {
	Command []string
	Stdout  io.Writer
	Stderr  io.Writer
}

func NewCommandEmitter(command []string) (*CommandEmitter, error) {
	if len(command) == 0 || command[0] == "" {
		return nil, ErrCommandEmpty
	}
	return &CommandEmitter{Command: command, Stdout: os.Stdout, Stderr: os.Stderr}, nil
}

func (c *CommandEmitter) Emit(ctx context.Context, s Subject) error {
	cmd := exec.CommandContext(ctx, c.Command[0], c.Command[1:]...)
	cmd.Env = append(os.Environ(),
		EnvStage+"="+string(s.Stage),
		EnvAPIStage+"="+string(s.APIStage),
		EnvReleased+"="+strconv.FormatBool(s.Released),
		EnvApplication+"="+s.Application,
		EnvVersion+"="+s.Version,
	)
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", c.Command[0], err)
	}
	return nil
}
