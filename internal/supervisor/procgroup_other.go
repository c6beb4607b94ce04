//go:build !unix

package supervisor

import "os/exec"

func isolate(cmd *exec.Cmd) {}

func kill(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}
