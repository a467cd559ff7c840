// Package errors provides the classified error primitives used across devbundle.
//
// Every failure that crosses a package boundary is a ClassifiedError carrying a
// category, a severity and structured context. Adapters turn those errors into
// CLI exit codes and JSON HTTP responses.
//
// Key features:
//   - ErrorCategory: broad classification (config, compilation, browser, livereload, ...)
//   - ErrorSeverity: impact level (fatal, error, warning, info)
//   - RetryStrategy: whether a caller may try again
//   - ErrorBuilder: fluent construction with context and cause
//
// Example usage:
//
//	err := errors.ConfigError("compiler command is required").
//		WithContext("field", "compiler.command").
//		Build()
package errors
