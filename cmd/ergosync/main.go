// Ergosync - Workout Reconciliation and Publication
// Copyright 2026 Ergosync contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ergosync/ergosync

package main

import (
	"fmt"
	"os"

	"github.com/ergosync/ergosync/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
