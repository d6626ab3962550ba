//go:build windows

package supervisor

import "os/exec"

func configureProc(*exec.Cmd) {}

// Windows has no SIGINT for child processes.
func interrupt(cmd *exec.Cmd) error { return cmd.Process.Kill() }

func kill(cmd *exec.Cmd) error { return cmd.Process.Kill() }
