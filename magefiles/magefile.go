// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

//go:build mage

// Package main provides build targets for the relmap project using Mage.
//
// Usage:
//
//	mage build        Compile the relmap binary to bin/
//	mage test:all     Run every test
//	mage test:race    Run every test with the race detector
//	mage test:cover   Run every test and write coverage.out
//	mage lint         Run golangci-lint
//	mage clean        Remove build artifacts
//	mage install      Install relmap to GOPATH/bin
//	mage stats        Print Go LOC per package and document word counts as JSON
package main

import (
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binGo      = "go"
	binLint    = "golangci-lint"
	binaryName = "relmap"
	binaryDir  = "bin"
	cmdDir     = "./cmd/relmap"
)

// Build compiles the relmap binary to bin/.
func Build() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	return sh.RunV(binGo, "build", "-v", "-o", filepath.Join(binaryDir, binaryName), cmdDir)
}

// Lint runs golangci-lint.
func Lint() error {
	return sh.RunV(binLint, "run", "./...")
}

// Clean removes build artifacts.
func Clean() error {
	if err := os.RemoveAll(binaryDir); err != nil {
		return err
	}
	if err := os.Remove(coverProfile); err != nil && !os.IsNotExist(err) {
		return err
	}
	return sh.RunV(binGo, "clean")
}

// Install builds and copies the binary to GOPATH/bin.
func Install() error {
	mg.Deps(Build)
	gopath, err := sh.Output(binGo, "env", "GOPATH")
	if err != nil {
		return err
	}
	src := filepath.Join(binaryDir, binaryName)
	dst := filepath.Join(gopath, "bin", binaryName)
	return sh.Copy(dst, src)
}
