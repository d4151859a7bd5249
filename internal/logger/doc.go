// Package logger wraps zap with the conventions used across escape-alarm:
//   - a global sugared logger with a console encoder on stdout,
//   - an optional rotating file sink (lumberjack) next to the console output,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level parsing and KV convenience functions (InfoKV, ErrorKV, ...).
//
// Components receive a context and extract the logger from it, so timer
// callbacks and poll goroutines log under the name of the component that
// scheduled them.
package logger
