package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/ledgerlink/ledgerlink/internal/adaptive"
	"github.com/ledgerlink/ledgerlink/internal/api"
	"github.com/ledgerlink/ledgerlink/internal/common"
	"github.com/ledgerlink/ledgerlink/internal/engine"
	"github.com/ledgerlink/ledgerlink/internal/match"
)

// Settings is the resolved application configuration after defaults,
// config file and environment variables have been merged.
type Settings struct {
	DatabasePath string

	AutoThreshold   float64
	ReviewThreshold float64
	Margin          float64
	AmountTolerance float64
	DateWindowDays  int
	ConfidenceFloor float64

	Workers        int
	PoolWindowDays int

	LearnRate     float64
	ReweightEvery int
	RecentWindow  int

	Port           int
	AllowedOrigins []string
}

func setDefaults() {
	mc := match.DefaultConfig()
	ec := engine.DefaultConfig()
	lc := adaptive.DefaultLearnerConfig()
	ac := api.DefaultConfig()

	viper.SetDefault("matching.auto_threshold", mc.AutoThreshold)
	viper.SetDefault("matching.review_threshold", mc.ReviewThreshold)
	viper.SetDefault("matching.margin", mc.Margin)
	viper.SetDefault("matching.amount_tolerance", mc.AmountTolerance)
	viper.SetDefault("matching.date_window_days", mc.DateWindowDays)
	viper.SetDefault("matching.confidence_floor", mc.ConfidenceFloor)

	viper.SetDefault("engine.workers", ec.Workers)
	viper.SetDefault("engine.pool_window_days", ec.PoolWindowDays)

	viper.SetDefault("learning.rate", lc.Rate)
	viper.SetDefault("learning.reweight_every", lc.ReweightEvery)
	viper.SetDefault("learning.recent_window", lc.RecentWindow)

	viper.SetDefault("api.port", ac.Port)
	viper.SetDefault("api.allowed_origins", ac.AllowedOrigins)
}

// Load materializes Settings from viper. Call after viper has read the
// config file and bound the environment.
func Load() (*Settings, error) {
	setDefaults()

	s := &Settings{
		DatabasePath:    ExpandPath(viper.GetString("database.path")),
		AutoThreshold:   viper.GetFloat64("matching.auto_threshold"),
		ReviewThreshold: viper.GetFloat64("matching.review_threshold"),
		Margin:          viper.GetFloat64("matching.margin"),
		AmountTolerance: viper.GetFloat64("matching.amount_tolerance"),
		DateWindowDays:  viper.GetInt("matching.date_window_days"),
		ConfidenceFloor: viper.GetFloat64("matching.confidence_floor"),
		Workers:         viper.GetInt("engine.workers"),
		PoolWindowDays:  viper.GetInt("engine.pool_window_days"),
		LearnRate:       viper.GetFloat64("learning.rate"),
		ReweightEvery:   viper.GetInt("learning.reweight_every"),
		RecentWindow:    viper.GetInt("learning.recent_window"),
		Port:            viper.GetInt("api.port"),
		AllowedOrigins:  viper.GetStringSlice("api.allowed_origins"),
	}

	if s.DatabasePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		s.DatabasePath = filepath.Join(home, ".local", "share", "ledgerlink", "ledgerlink.db")
	}

	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) validate() error {
	if s.AutoThreshold < s.ReviewThreshold {
		return fmt.Errorf("%w: auto_threshold %.2f below review_threshold %.2f",
			common.ErrInvalidConfig, s.AutoThreshold, s.ReviewThreshold)
	}
	for name, v := range map[string]float64{
		"auto_threshold":   s.AutoThreshold,
		"review_threshold": s.ReviewThreshold,
		"margin":           s.Margin,
		"confidence_floor": s.ConfidenceFloor,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: %s must be in [0, 1], got %.2f", common.ErrInvalidConfig, name, v)
		}
	}
	if s.AmountTolerance <= 0 {
		return fmt.Errorf("%w: amount_tolerance must be positive", common.ErrInvalidConfig)
	}
	if s.DateWindowDays <= 0 {
		return fmt.Errorf("%w: date_window_days must be positive", common.ErrInvalidConfig)
	}
	if s.LearnRate <= 0 || s.LearnRate >= 1 {
		return fmt.Errorf("%w: learning rate must be in (0, 1)", common.ErrInvalidConfig)
	}
	return nil
}

// MatchConfig builds the scorer and policy configuration.
func (s *Settings) MatchConfig() match.Config {
	return match.Config{
		AutoThreshold:   s.AutoThreshold,
		ReviewThreshold: s.ReviewThreshold,
		Margin:          s.Margin,
		AmountTolerance: s.AmountTolerance,
		DateWindowDays:  s.DateWindowDays,
		ConfidenceFloor: s.ConfidenceFloor,
	}
}

// EngineConfig builds the matching engine configuration.
func (s *Settings) EngineConfig() engine.Config {
	return engine.Config{
		Match:          s.MatchConfig(),
		Workers:        s.Workers,
		PoolWindowDays: s.PoolWindowDays,
	}
}

// LearnerConfig builds the correction learner configuration.
func (s *Settings) LearnerConfig() adaptive.LearnerConfig {
	return adaptive.LearnerConfig{
		Rate:          s.LearnRate,
		ReweightEvery: int64(s.ReweightEvery),
		RecentWindow:  s.RecentWindow,
	}
}

// APIConfig builds the HTTP server configuration.
func (s *Settings) APIConfig() api.Config {
	return api.Config{
		Port:           s.Port,
		AllowedOrigins: s.AllowedOrigins,
	}
}
