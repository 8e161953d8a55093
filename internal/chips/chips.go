// Package chips collects every chipset ReasonChip ships built in, so a
// caller need only blank-import this package to make them all
// discoverable through pkg/chip.Registry.Discover's package-root walk.
package chips

import (
	_ "github.com/SouthPatron/reasonchip/internal/chips/asserts"
	_ "github.com/SouthPatron/reasonchip/internal/chips/strip"
	_ "github.com/SouthPatron/reasonchip/internal/chips/waitfor"

	"github.com/SouthPatron/reasonchip/pkg/chip"
)

// Names lists the chipset names this package makes available, in the order
// a full Discover call would typically want them.
func Names() []string {
	return []string{"wait_for", "asserts", "strip"}
}

// DiscoverAll registers every built-in chipset onto r.
func DiscoverAll(r *chip.Registry) error {
	return r.Discover(Names()...)
}
