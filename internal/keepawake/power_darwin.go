//go:build darwin

package keepawake

import (
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

var pmsetPercentRe = regexp.MustCompile(`(\d+)%`)

// NewDefaultPowerSource reads `pmset -g batt`.
func NewDefaultPowerSource() PowerSource {
	return PowerFunc(func() Power {
		out, err := exec.Command("pmset", "-g", "batt").Output()
		if err != nil {
			return Power{}
		}
		return parsePmset(string(out))
	})
}

func parsePmset(out string) Power {
	var p Power
	switch {
	case strings.Contains(out, "'Battery Power'"):
		on := true
		p.OnBattery = &on
	case strings.Contains(out, "'AC Power'"):
		on := false
		p.OnBattery = &on
	}
	if m := pmsetPercentRe.FindStringSubmatch(out); m != nil {
		if pct, err := strconv.Atoi(m[1]); err == nil && pct <= 100 {
			p.Percent = &pct
		}
	}
	return p
}
