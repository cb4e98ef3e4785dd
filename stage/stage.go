// Package stage names the deployment environment the wizard runs in. It is configured through
// the "environment" key and ends up on telemetry resources.
package stage

import (
	"errors"
	"flag"
	"fmt"
	"strings"
)

// Stage represents a deployment environment.
type Stage string

// ErrUnrecognizedStage is returned for values outside the known stages.
var ErrUnrecognizedStage = errors.New("unrecognized stage")

const (
	// Unknown indicates the stage could not be determined.
	Unknown Stage = "unknown"
	// Local indicates a developer's machine.
	Local   Stage = "local"
	Test    Stage = "test"
	Dev     Stage = "dev"
	Staging Stage = "staging"
	Prod    Stage = "prod"
)

// Parse maps a configured value to a Stage. An empty value is Local, or Test under go test.
func Parse(value string) (Stage, error) {
	value = strings.ToLower(strings.TrimSpace(value))

	switch Stage(value) {
	case Local, Test, Dev, Staging, Prod:
		return Stage(value), nil
	case "":
		if flag.Lookup("test.v") != nil {
			return Test, nil
		}

		return Local, nil
	case Unknown:
		fallthrough
	default:
		return Unknown, fmt.Errorf("%w: %q", ErrUnrecognizedStage, value)
	}
}

// Deployed reports whether the stage is a shared environment rather than a laptop or a test.
func (s Stage) Deployed() bool {
	return s == Dev || s == Staging || s == Prod
}

func (s Stage) String() string {
	return string(s)
}
