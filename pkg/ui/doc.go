// Package ui holds the console output of the command line: colored
// messages, the per-blog progress line shown during a backup, the run
// summary and optional desktop notifications.
package ui
