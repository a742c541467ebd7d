// Package main provides the entry point for the codesearch CLI, a thin
// operator front end over the indexing and retrieval core.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/codesearch-core/codesearch/cmd/codesearch/cmd"
	coreerrors "github.com/codesearch-core/codesearch/internal/errors"
)

func main() {
	os.Exit(run())
}

func run() int {
	err := cmd.Execute()
	if err == nil {
		return 0
	}

	fmt.Fprintln(os.Stderr, err)

	var codeErr *coreerrors.CodeError
	if !errors.As(err, &codeErr) {
		return 1
	}

	switch codeErr.Kind() {
	case coreerrors.KindConfiguration:
		return 2
	case coreerrors.KindProviderUnavailable, coreerrors.KindProviderFatal, coreerrors.KindProviderSwitch:
		return 3
	case coreerrors.KindCollectionNotFound, coreerrors.KindPersistence:
		return 4
	default:
		return 1
	}
}
