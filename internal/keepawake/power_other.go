//go:build !darwin && !linux

package keepawake

// NewDefaultPowerSource reports an unknown power state.
func NewDefaultPowerSource() PowerSource {
	return PowerFunc(func() Power { return Power{} })
}
