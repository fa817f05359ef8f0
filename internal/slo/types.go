package slo

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Google SRE multi-window defaults applied when a definition omits them.
const (
	DefaultWindowDays        = 30
	DefaultFastBurnThreshold = 14.4
	DefaultSlowBurnThreshold = 6.0
	DefaultFastWindow        = "5m"
	DefaultSlowWindow        = "1h"
)

// Definition is a single SLO as held by the engine: a read-only, versioned
// snapshot of what the registry knows. The engine never mutates one; an
// update in the registry produces a definition with a new fingerprint.
type Definition struct {
	ID          string `yaml:"id"`
	TenantID    string `yaml:"tenantId"`
	Name        string `yaml:"name"`
	Service     string `yaml:"service,omitempty"`
	Description string `yaml:"description,omitempty"`

	// Target is the objective as a fraction in (0,1), e.g. 0.999.
	Target float64 `yaml:"target"`

	// GoodQuery and TotalQuery are PromQL selectors for good and total
	// events. ErrorRatioQuery, when set, takes precedence and is used
	// directly as the error-ratio expression with {{window}} substituted.
	GoodQuery       string `yaml:"goodQuery,omitempty"`
	TotalQuery      string `yaml:"totalQuery,omitempty"`
	ErrorRatioQuery string `yaml:"errorRatioQuery,omitempty"`

	// WindowDays is the rolling compliance window for the error budget.
	WindowDays int `yaml:"windowDays,omitempty"`

	FastBurnThreshold float64 `yaml:"fastBurnThreshold,omitempty"`
	SlowBurnThreshold float64 `yaml:"slowBurnThreshold,omitempty"`
	FastWindow        string  `yaml:"fastWindow,omitempty"`
	SlowWindow        string  `yaml:"slowWindow,omitempty"`

	// Disabled excludes the definition from scheduling without deleting it.
	Disabled bool `yaml:"disabled,omitempty"`
}

// ApplyDefaults fills in the Google SRE defaults for any omitted field.
func (d *Definition) ApplyDefaults() {
	if d.WindowDays == 0 {
		d.WindowDays = DefaultWindowDays
	}
	if d.FastBurnThreshold == 0 {
		d.FastBurnThreshold = DefaultFastBurnThreshold
	}
	if d.SlowBurnThreshold == 0 {
		d.SlowBurnThreshold = DefaultSlowBurnThreshold
	}
	if d.FastWindow == "" {
		d.FastWindow = DefaultFastWindow
	}
	if d.SlowWindow == "" {
		d.SlowWindow = DefaultSlowWindow
	}
}

// Validate enforces the definition invariants. A definition that fails here
// is rejected at registration and never reaches the evaluation engine.
func (d *Definition) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("definition missing id")
	}
	if d.TenantID == "" {
		return fmt.Errorf("definition %s: missing tenantId", d.ID)
	}
	if d.Target <= 0 || d.Target >= 1 {
		return fmt.Errorf("definition %s: target must be in (0,1), got %v", d.ID, d.Target)
	}
	if d.ErrorRatioQuery == "" && (d.GoodQuery == "" || d.TotalQuery == "") {
		return fmt.Errorf("definition %s: either errorRatioQuery or both goodQuery and totalQuery are required", d.ID)
	}
	if d.WindowDays <= 0 {
		return fmt.Errorf("definition %s: windowDays must be positive, got %d", d.ID, d.WindowDays)
	}
	if d.FastBurnThreshold <= 0 {
		return fmt.Errorf("definition %s: fastBurnThreshold must be positive, got %v", d.ID, d.FastBurnThreshold)
	}
	if d.SlowBurnThreshold <= 0 {
		return fmt.Errorf("definition %s: slowBurnThreshold must be positive, got %v", d.ID, d.SlowBurnThreshold)
	}

	fast, err := ParseDuration(d.FastWindow)
	if err != nil {
		return fmt.Errorf("definition %s: fastWindow: %w", d.ID, err)
	}
	slow, err := ParseDuration(d.SlowWindow)
	if err != nil {
		return fmt.Errorf("definition %s: slowWindow: %w", d.ID, err)
	}
	if fast >= slow {
		return fmt.Errorf("definition %s: fastWindow (%s) must be shorter than slowWindow (%s)",
			d.ID, d.FastWindow, d.SlowWindow)
	}
	if slow > d.ComplianceWindow() {
		return fmt.Errorf("definition %s: slowWindow (%s) exceeds the %d-day compliance window",
			d.ID, d.SlowWindow, d.WindowDays)
	}
	return nil
}

// FastWindowDuration returns the parsed fast window. Call after Validate.
func (d *Definition) FastWindowDuration() time.Duration {
	dur, _ := ParseDuration(d.FastWindow)
	return dur
}

// SlowWindowDuration returns the parsed slow window. Call after Validate.
func (d *Definition) SlowWindowDuration() time.Duration {
	dur, _ := ParseDuration(d.SlowWindow)
	return dur
}

// ComplianceWindow returns the rolling compliance window as a duration.
func (d *Definition) ComplianceWindow() time.Duration {
	return time.Duration(d.WindowDays) * 24 * time.Hour
}

// Fingerprint returns a stable hash over the fields that change evaluation
// semantics. The scheduler resets alert state when a definition's
// fingerprint changes: stale state under new semantics is discarded.
func (d *Definition) Fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%v|%s|%s|%s|%d|%v|%v|%s|%s",
		d.ID, d.TenantID, d.Target,
		d.GoodQuery, d.TotalQuery, d.ErrorRatioQuery,
		d.WindowDays,
		d.FastBurnThreshold, d.SlowBurnThreshold,
		d.FastWindow, d.SlowWindow,
	)
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// DefinitionWithFile pairs a definition with its source file path.
type DefinitionWithFile struct {
	Definition *Definition
	File       string
}

// ValidationError represents a validation error for a specific file.
type ValidationError struct {
	File    string
	Path    string
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Path != "" {
		return e.File + ": " + e.Path + ": " + e.Message
	}
	return e.File + ": " + e.Message
}
