package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/skillmeat/skillmeat/internal/types"
)

// outputJSON marshals v with indentation to stdout.
func outputJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(data))
}

// FatalError prints a formatted error to stderr and exits 1.
func FatalError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// FatalErrorRespectJSON is FatalError, except under --json it emits a
// structured error envelope on stdout so scripted callers can parse it.
func FatalErrorRespectJSON(format string, args ...interface{}) {
	if jsonOutput {
		outputJSON(map[string]interface{}{
			"error": map[string]string{"message": fmt.Sprintf(format, args...)},
		})
		os.Exit(1)
	}
	FatalError(format, args...)
}

// FatalErr reports an operation error with its kind tag and exits 1. Partial
// outcomes carry their applied and failed sets into the output untruncated.
func FatalErr(err error) {
	detail := types.Detail(err)
	if jsonOutput {
		envelope := map[string]interface{}{
			"kind":    string(types.Kind(err)),
			"message": err.Error(),
		}
		if detail != nil {
			envelope["detail"] = detail
		}
		outputJSON(map[string]interface{}{"error": envelope})
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "Error: %s\n", types.Summary(err))
	if detail != nil {
		if data, merr := json.MarshalIndent(detail, "", "  "); merr == nil {
			fmt.Fprintln(os.Stderr, string(data))
		}
	}
	os.Exit(1)
}
