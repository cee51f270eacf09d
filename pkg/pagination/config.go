package pagination

import "fmt"

// Config holds walker configuration.
type Config struct {
	// MaxPages caps the number of pages walked per Dereference call.
	// Zero means no limit.
	MaxPages int

	// DetectCycles fails the walk when a next link points at a page that was
	// already visited.
	DetectCycles bool

	// MaxPendingPages bounds how many fetched pages may wait behind the page
	// currently being read. The walker pauses before fetching further pages
	// once the bound is reached. Zero means no bound.
	MaxPendingPages int
}

// DefaultConfig returns the default walker configuration: no page limit, no
// cycle detection and an unbounded prefetch window.
func DefaultConfig() Config {
	return Config{}
}

// Validate checks the configuration for invalid values.
func (c Config) Validate() error {
	if c.MaxPages < 0 {
		return fmt.Errorf("max_pages must be >= 0 (got %d)", c.MaxPages)
	}
	if c.MaxPendingPages < 0 {
		return fmt.Errorf("max_pending_pages must be >= 0 (got %d)", c.MaxPendingPages)
	}
	return nil
}
