// Package wizard provides an interactive setup wizard for clusterous.
//
// This package implements a TUI-based wizard that guides users through
// creating the provider profile (~/.clusterous.yml). It uses
// charmbracelet/huh for form-based input collection.
//
// The main entry point is RunWizard, which orchestrates question groups
// and returns a WizardResult. Use BuildConfig to convert results to a
// config.Config, and WriteConfig to generate the YAML profile.
package wizard
