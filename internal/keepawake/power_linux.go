//go:build linux

package keepawake

// NewDefaultPowerSource reads the kernel power_supply class.
func NewDefaultPowerSource() PowerSource {
	return PowerFunc(func() Power { return readSysfsPower("/sys/class/power_supply") })
}
