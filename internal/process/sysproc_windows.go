//go:build windows

package process

import (
	"os"
	"os/exec"
)

func setProcessGroup(_ *exec.Cmd) {}

func killProcess(p *os.Process) error {
	return p.Kill()
}
