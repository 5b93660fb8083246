// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

//go:build mage

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// projectDocs are the documents counted by Stats. Missing ones are skipped.
var projectDocs = []string{"README.md", "DESIGN.md", "SPEC_FULL.md"}

// skipDirs are not walked for Go sources.
var skipDirs = map[string]bool{
	".git":      true,
	"vendor":    true,
	"_examples": true,
	"magefiles": true,
	binaryDir:   true,
}

type packageStats struct {
	Prod int `json:"prod"`
	Test int `json:"test"`
}

type stats struct {
	ProdLines int                      `json:"go_loc_prod"`
	TestLines int                      `json:"go_loc_test"`
	Lines     int                      `json:"go_loc"`
	Packages  map[string]*packageStats `json:"packages"`
	DocWords  map[string]int           `json:"doc_words"`
}

// Stats prints Go lines per package and word counts of the project documents
// as one JSON object.
func Stats() error {
	st := stats{Packages: map[string]*packageStats{}, DocWords: map[string]int{}}

	err := filepath.WalkDir(".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skipDirs[path] {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".go" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		n := bytes.Count(data, []byte("\n"))
		pkg := filepath.ToSlash(filepath.Dir(path))
		ps, ok := st.Packages[pkg]
		if !ok {
			ps = &packageStats{}
			st.Packages[pkg] = ps
		}
		if strings.HasSuffix(path, "_test.go") {
			ps.Test += n
			st.TestLines += n
		} else {
			ps.Prod += n
			st.ProdLines += n
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("count go lines: %w", err)
	}
	st.Lines = st.ProdLines + st.TestLines

	for _, doc := range projectDocs {
		data, err := os.ReadFile(doc)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return err
		}
		st.DocWords[doc] = len(strings.Fields(string(data)))
	}

	out, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

