// Package langs validates (source, target) language pairs against the
// capability oracle of the translation provider.
package langs

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

var (
	ErrBadSource       = errors.New("langs: unsupported source language")
	ErrBadTarget       = errors.New("langs: unsupported target language")
	ErrUnsupportedPair = errors.New("langs: unsupported language pair")
)

// Oracle reports the language capabilities of the upstream providers.
type Oracle interface {
	SupportedLanguages(ctx context.Context) (sources, targets []string, err error)
}

// fallbackLanguages keeps the control plane usable when the oracle is down or
// cold: common ISO 639-1 codes accepted for both directions.
var fallbackLanguages = []string{"en", "es", "fr", "de", "it", "pt", "ja", "ko", "zh", "ar"}

// Validator holds a read-mostly cache of supported language sets, refreshed
// from the oracle on an interval.
type Validator struct {
	oracle Oracle

	mu       sync.RWMutex
	sources  map[string]struct{}
	targets  map[string]struct{}
	degraded bool
	// warned makes the degraded log fire once per refresh cycle.
	warned bool
}

// NewValidator creates a validator in degraded mode; call Refresh (or Run)
// to populate it from the oracle.
func NewValidator(oracle Oracle) *Validator {
	v := &Validator{oracle: oracle}
	v.applyFallback()
	return v
}

// Refresh queries the oracle once. Oracle failure or an empty answer keeps
// the built-in safe-list instead of denying every request.
func (v *Validator) Refresh(ctx context.Context) {
	sources, targets, err := v.oracle.SupportedLanguages(ctx)

	v.mu.Lock()
	defer v.mu.Unlock()

	v.warned = false
	if err != nil || len(sources) == 0 || len(targets) == 0 {
		if err != nil {
			log.Printf("[Langs] Capability oracle unavailable: %v", err)
		}
		v.fallbackLocked()
		return
	}

	v.sources = toSet(sources)
	v.targets = toSet(targets)
	v.degraded = false
	log.Printf("[Langs] Refreshed capabilities: %d sources, %d targets", len(sources), len(targets))
}

// Run refreshes immediately and then on every interval tick until ctx ends.
func (v *Validator) Run(ctx context.Context, interval time.Duration) {
	v.Refresh(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			v.Refresh(ctx)
		}
	}
}

// ValidatePair reports whether audio in source can be translated to target.
func (v *Validator) ValidatePair(source, target string) error {
	v.mu.Lock()
	if v.degraded && !v.warned {
		v.warned = true
		log.Printf("[Langs] ⚠️ degraded_validator: oracle empty, using built-in safe-list")
	}
	sources, targets := v.sources, v.targets
	v.mu.Unlock()

	if _, ok := sources[source]; !ok {
		return ErrBadSource
	}
	if _, ok := targets[target]; !ok {
		return ErrBadTarget
	}
	if source == target {
		return ErrUnsupportedPair
	}
	return nil
}

// ValidateSource reports whether audio in source can be transcribed at all.
// Used at session creation, before any listener names a target.
func (v *Validator) ValidateSource(source string) error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if _, ok := v.sources[source]; !ok {
		return ErrBadSource
	}
	return nil
}

// Degraded reports whether the validator is running on the safe-list.
func (v *Validator) Degraded() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.degraded
}

func (v *Validator) applyFallback() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.fallbackLocked()
}

func (v *Validator) fallbackLocked() {
	v.sources = toSet(fallbackLanguages)
	v.targets = toSet(fallbackLanguages)
	v.degraded = true
}

func toSet(langs []string) map[string]struct{} {
	set := make(map[string]struct{}, len(langs))
	for _, l := range langs {
		set[l] = struct{}{}
	}
	return set
}
