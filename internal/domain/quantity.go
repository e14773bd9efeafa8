package domain

import (
	"fmt"
	"strings"
)

// Quantity is the hydraulic variable a run is computed from.
type Quantity int

const (
	// QuantityLevel computes depth as water level minus terrain.
	QuantityLevel Quantity = iota
	// QuantityDepth uses the simulated 2D water depth directly.
	QuantityDepth
)

// ParseQuantity validates a quantity flag. The empty string selects level.
func ParseQuantity(s string) (Quantity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "level":
		return QuantityLevel, nil
	case "depth":
		return QuantityDepth, nil
	default:
		return 0, fmt.Errorf("%w: %q (want \"level\" or \"depth\")", ErrUnknownQuantity, s)
	}
}

func (q Quantity) String() string {
	if q == QuantityDepth {
		return "depth"
	}
	return "level"
}

// FilePrefix is the stem used for debug vector layers, e.g. "waterlevel1D.shp".
func (q Quantity) FilePrefix() string {
	if q == QuantityDepth {
		return "waterdepth"
	}
	return "waterlevel"
}

// Domain selects which hydraulic domains take part in a run.
type Domain int

const (
	// DomainBoth uses every domain present in the results.
	DomainBoth Domain = iota
	// Domain1D restricts the run to the channel network.
	Domain1D
	// Domain2D restricts the run to the floodplain mesh.
	Domain2D
)

// ParseDomain validates a domain flag. The empty string selects both domains.
func ParseDomain(s string) (Domain, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "":
		return DomainBoth, nil
	case "1D":
		return Domain1D, nil
	case "2D":
		return Domain2D, nil
	default:
		return 0, fmt.Errorf("%w: %q (want \"1D\", \"2D\" or empty)", ErrInvalidDomain, s)
	}
}

func (d Domain) String() string {
	switch d {
	case Domain1D:
		return "1D"
	case Domain2D:
		return "2D"
	default:
		return ""
	}
}

// Includes1D reports whether the 1D network takes part.
func (d Domain) Includes1D() bool { return d != Domain2D }

// Includes2D reports whether the 2D mesh takes part.
func (d Domain) Includes2D() bool { return d != Domain1D }
