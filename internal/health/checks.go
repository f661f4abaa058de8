package health

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/transcriptqa/internal/resilience"
	"github.com/MrWong99/transcriptqa/internal/transcript"
)

// TranscriptLoaded fails while the transcript returned by get is missing or
// has no paragraphs.
func TranscriptLoaded(get func() *transcript.Transcript) Checker {
	return Checker{
		Name: "transcript",
		Check: func(context.Context) error {
			if get().Empty() {
				return errors.New("no transcript loaded")
			}
			return nil
		},
	}
}

// ProviderConfigured fails when configured is false. It reports a provider
// of the given kind that the server needs but was not given.
func ProviderConfigured(kind string, configured bool) Checker {
	return Checker{
		Name: kind,
		Check: func(context.Context) error {
			if !configured {
				return fmt.Errorf("no %s provider configured", kind)
			}
			return nil
		},
	}
}

// BreakerClosed fails while cb is open. A half-open breaker is ready: it is
// letting probe calls through.
func BreakerClosed(cb *resilience.CircuitBreaker) Checker {
	return Checker{
		Name: "breaker:" + cb.Name(),
		Check: func(context.Context) error {
			if cb.State() == resilience.StateOpen {
				return fmt.Errorf("circuit breaker %q is open", cb.Name())
			}
			return nil
		},
	}
}
