package parser

import (
	"context"
	"reflect"
	"testing"

	"codescope/internal/errors"
	"codescope/internal/model"
)

func TestParseRejectsUndecodableContent(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
	}{
		{"invalid utf8", []byte{0xff, 0xfe, 'h', 'i'}},
		{"nul byte", []byte("package main\x00")},
	}
	p := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := p.Parse(context.Background(), "main.go", tt.content, LangGo)
			if !errors.Is(err, errors.DecodeError) {
				t.Fatalf("expected DecodeError, got %v", err)
			}
		})
	}
}

func TestParseUnsupportedLanguage(t *testing.T) {
	p := New()
	units, edges, err := p.Parse(context.Background(), "notes.txt", []byte("hello"), LangUnknown)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(units) != 1 || units[0].Kind != model.KindFile {
		t.Fatalf("units = %v, want a single file unit", units)
	}
	if len(edges) != 0 {
		t.Fatalf("edges = %v, want none", edges)
	}
}

func TestParseIsDeterministic(t *testing.T) {
	content := []byte(`package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println(os.Args)
}
`)
	p := New()
	u1, e1, err := p.Parse(context.Background(), "main.go", content, LangGo)
	if err != nil {
		t.Fatal(err)
	}
	u2, e2, err := p.Parse(context.Background(), "main.go", content, LangGo)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(u1, u2) {
		t.Errorf("unit output differs between identical parses")
	}
	if !reflect.DeepEqual(e1, e2) {
		t.Errorf("edge output differs between identical parses")
	}
}

func TestParseEmitsImportEdgesWithModuleUnits(t *testing.T) {
	content := []byte(`package main

import (
	"fmt"
	"strings"
)
`)
	p := New()
	units, edges, err := p.Parse(context.Background(), "main.go", content, LangGo)
	if err != nil {
		t.Fatal(err)
	}

	unitIDs := make(map[string]model.UnitKind)
	for _, u := range units {
		unitIDs[u.ID] = u.Kind
	}
	if unitIDs[FileUnitID("main.go")] != model.KindFile {
		t.Fatalf("missing file unit")
	}
	for _, imp := range []string{"fmt", "strings"} {
		if unitIDs[ModuleUnitID(imp)] != model.KindModule {
			t.Errorf("missing module unit for %s", imp)
		}
	}
	// Module units are shared across importing files, so they must not
	// claim the importing file's path.
	for _, u := range units {
		if u.Kind == model.KindModule && u.Path != "" {
			t.Errorf("module unit %s carries path %q, want none", u.Name, u.Path)
		}
	}

	// Every import edge must resolve within the batch itself.
	for _, e := range edges {
		if _, ok := unitIDs[e.From]; !ok {
			t.Errorf("edge source %s not in batch", e.From)
		}
		if _, ok := unitIDs[e.To]; !ok {
			t.Errorf("edge target %s not in batch", e.To)
		}
	}

	var importEdges int
	for _, e := range edges {
		if e.Kind == model.EdgeImports {
			importEdges++
			if e.Confidence != 1.0 {
				t.Errorf("import edge confidence = %v, want 1.0", e.Confidence)
			}
		}
	}
	if importEdges != 2 {
		t.Errorf("import edges = %d, want 2", importEdges)
	}
}

func TestFileUnitIDIndependentOfContent(t *testing.T) {
	p := New()
	u1, _, err := p.Parse(context.Background(), "a.go", []byte("package a\n"), LangGo)
	if err != nil {
		t.Fatal(err)
	}
	u2, _, err := p.Parse(context.Background(), "a.go", []byte("package a\n\nfunc X() {}\n"), LangGo)
	if err != nil {
		t.Fatal(err)
	}
	if u1[0].ID != u2[0].ID {
		t.Errorf("file unit id changed with content: %s vs %s", u1[0].ID, u2[0].ID)
	}
	if u1[0].ContentHash == u2[0].ContentHash {
		t.Errorf("content hash did not change with content")
	}
}

func TestParseFileDetectsLanguage(t *testing.T) {
	p := New()
	units, _, err := p.ParseFile(context.Background(), "src/app.py", []byte("import os\n"))
	if err != nil {
		t.Fatal(err)
	}
	if units[0].Language != string(LangPython) {
		t.Errorf("language = %q, want python", units[0].Language)
	}
}

func TestScanImports(t *testing.T) {
	tests := []struct {
		name    string
		lang    Language
		content string
		want    []string
	}{
		{
			name:    "go block",
			lang:    LangGo,
			content: "package x\n\nimport (\n\t\"fmt\"\n\tfoo \"example.com/foo\"\n)\n",
			want:    []string{"example.com/foo", "fmt"},
		},
		{
			name:    "go single",
			lang:    LangGo,
			content: "package x\nimport \"errors\"\n",
			want:    []string{"errors"},
		},
		{
			name:    "python",
			lang:    LangPython,
			content: "import os\nfrom collections import defaultdict\n",
			want:    []string{"collections", "os"},
		},
		{
			name:    "javascript",
			lang:    LangJavaScript,
			content: "import React from 'react';\nconst fs = require('fs');\nexport { x } from './util';\n",
			want:    []string{"./util", "fs", "react"},
		},
		{
			name:    "rust",
			lang:    LangRust,
			content: "use std::collections::HashMap;\nuse serde::Serialize;\n",
			want:    []string{"serde::Serialize", "std::collections::HashMap"},
		},
		{
			name:    "java",
			lang:    LangJava,
			content: "package com.a;\nimport java.util.List;\nimport com.b.Thing;\n",
			want:    []string{"com.b.Thing", "java.util.List"},
		},
		{
			name:    "duplicates collapse",
			lang:    LangPython,
			content: "import os\nimport os\n",
			want:    []string{"os"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScanImports([]byte(tt.content), tt.lang)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ScanImports = %v, want %v", got, tt.want)
			}
		})
	}
}
