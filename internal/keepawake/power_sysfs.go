package keepawake

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// readSysfsPower inspects the first battery under root, normally
// /sys/class/power_supply.
func readSysfsPower(root string) Power {
	entries, err := os.ReadDir(root)
	if err != nil {
		return Power{}
	}
	read := func(dir, name string) string {
		b, err := os.ReadFile(filepath.Join(root, dir, name))
		if err != nil {
			return ""
		}
		return strings.TrimSpace(string(b))
	}

	for _, e := range entries {
		if read(e.Name(), "type") != "Battery" {
			continue
		}
		var p Power
		switch read(e.Name(), "status") {
		case "Discharging":
			on := true
			p.OnBattery = &on
		case "Charging", "Full", "Not charging":
			on := false
			p.OnBattery = &on
		}
		if pct, err := strconv.Atoi(read(e.Name(), "capacity")); err == nil && pct >= 0 && pct <= 100 {
			p.Percent = &pct
		}
		return p
	}
	return Power{}
}
