package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// HandleFatalError handles unrecoverable errors that should terminate the application.
func HandleFatalError(userMsg string, technicalErr error) {
	PrintError(userMsg, technicalErr)
	os.Exit(1)
}

// PrintError prints an error message without exiting, allowing for recovery.
// It prints a user-friendly message by default; with --verbose it prints the
// full technical error instead.
func PrintError(userMsg string, technicalErr error) {
	if viper.GetBool("verbose") && technicalErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", technicalErr)
	} else {
		fmt.Fprintln(os.Stderr, userMsg)
	}
}

// LogError logs an error to stderr only when verbose mode is on.
func LogError(msg string, err error) {
	if viper.GetBool("verbose") {
		if err != nil {
			fmt.Fprintf(os.Stderr, "[DEBUG] %s: %v\n", msg, err)
		} else {
			fmt.Fprintf(os.Stderr, "[DEBUG] %s\n", msg)
		}
	}
}
