package match

// Config holds the tunable matching and decision parameters. Every value
// here is surfaced through the configuration file; the defaults are
// starting points, not requirements.
type Config struct {
	AutoThreshold   float64
	ReviewThreshold float64
	Margin          float64
	AmountTolerance float64
	DateWindowDays  int
	ConfidenceFloor float64
}

// DefaultConfig returns the default matching configuration.
func DefaultConfig() Config {
	return Config{
		AutoThreshold:   0.90,
		ReviewThreshold: 0.60,
		Margin:          0.10,
		AmountTolerance: 0.02,
		DateWindowDays:  30,
		ConfidenceFloor: 0.35,
	}
}
