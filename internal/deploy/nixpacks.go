package deploy

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"

	"github.com/GLINCKER/glinrdock/internal/apperror"
)

// buildWithNixpacks shells out to the external nixpacks binary the way
// internal/docker/runner.go shells out to docker buildx, streaming
// combined stdout/stderr line by line to onLine. Returns Upstream if the
// binary is not installed.
func buildWithNixpacks(ctx context.Context, workDir, tag string, onLine func(string)) error {
	nixpacksCmd, err := exec.LookPath("nixpacks")
	if err != nil {
		return apperror.Wrap(apperror.Upstream, "nixpacks binary not found on PATH", err)
	}

	cmd := exec.CommandContext(ctx, nixpacksCmd, "build", workDir, "--name", tag)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return apperror.Wrap(apperror.Internal, "failed to create nixpacks stdout pipe", err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return apperror.Wrap(apperror.Upstream, "failed to start nixpacks", err)
	}

	streamLines(stdout, onLine)

	if err := cmd.Wait(); err != nil {
		return apperror.Wrap(apperror.Upstream, "nixpacks build failed", err)
	}
	return nil
}

func streamLines(r io.Reader, onLine func(string)) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	for scanner.Scan() {
		onLine(fmt.Sprintln(scanner.Text()))
	}
}
