// Package callbacks provides observers of the agent loop:
// Noop, Printer, PackageLogger, Fanout and Scratchpad.
package callbacks
