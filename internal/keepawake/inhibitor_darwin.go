//go:build darwin

package keepawake

import (
	"os"
	"os/exec"
	"strconv"
)

// NewDefaultAdapter prevents idle sleep with caffeinate.
func NewDefaultAdapter() Adapter {
	return &processAdapter{
		name:    "caffeinate",
		args:    []string{"-i", "-w", strconv.Itoa(os.Getpid())},
		execCmd: exec.Command,
	}
}
