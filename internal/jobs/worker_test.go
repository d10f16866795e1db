package jobs

import (
	"errors"
	"strings"
	"testing"
)

func TestPanicErrorCarriesRecoveredValue(t *testing.T) {
	if got := errFromRecover("index out of range").Error(); got != "panic: index out of range" {
		t.Fatalf("panic error = %q", got)
	}
	if got := errFromRecover(errors.New("nil map write")).Error(); got != "panic: nil map write" {
		t.Fatalf("panic error from error value = %q", got)
	}
}

func TestMissingHandlerErrorNamesJobType(t *testing.T) {
	err := &missingHandlerError{JobType: "discovery_cycle"}
	if !strings.Contains(err.Error(), "discovery_cycle") {
		t.Fatalf("missing handler error omits job type: %q", err.Error())
	}
}
