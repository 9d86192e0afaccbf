// Package runtimex contains [runtime] extensions.
package runtimex

import "fmt"

// PanicOnError calls panic if the given error is not nil.
func PanicOnError(err error, message string) {
	if err != nil {
		panic(fmt.Errorf("%s: %w", message, err))
	}
}
