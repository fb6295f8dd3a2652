// Package config provides configuration structures and utilities for gdorker.
// It defines the options that control query dispatch pacing, proxy rotation,
// backend selection and result persistence.
package config
