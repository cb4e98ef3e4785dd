// Command wizard serves and runs the onboarding and payment-simulator flows.
package main

import (
	"context"
	"os"

	"github.com/amp-labs/wizard/logger"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		logger.Get().Error("wizard failed", "error", err)
		os.Exit(1)
	}
}
