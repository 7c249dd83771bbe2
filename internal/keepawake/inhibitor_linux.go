//go:build linux

package keepawake

import (
	"os"
	"os/exec"
	"strconv"
)

// NewDefaultAdapter takes a logind idle inhibitor lock via systemd-inhibit.
// The lock lives as long as the wrapped tail, which follows our pid.
func NewDefaultAdapter() Adapter {
	return &processAdapter{
		name: "systemd-inhibit",
		args: []string{
			"--what=idle",
			"--who=chrono",
			"--why=Focus session running",
			"--mode=block",
			"tail", "--pid=" + strconv.Itoa(os.Getpid()), "-f", "/dev/null",
		},
		execCmd: exec.Command,
	}
}
