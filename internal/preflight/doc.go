// Package preflight validates the host environment before the engine
// starts. It checks disk space, write permissions, file descriptor
// limits and the embedding provider.
//
// Required checks abort startup when they fail. Provider checks only
// warn, because the engine degrades to keyword-only search without an
// embedder.
//
//	checker := preflight.New()
//	results := checker.RunAll(ctx, cfg)
//	if checker.HasCriticalFailures(results) {
//	    // refuse to start
//	}
package preflight
