// Package logging provides opt-in file-based logging with rotation for forge.
// When the --debug flag is set, comprehensive logs are written to ~/.forge/logs/
// for debugging and troubleshooting.
//
// By default (without --debug), logging is minimal and goes to stderr only.
package logging
