// Copyright (C) 2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"archive/zip"
	"fmt"
	"io"
	"strings"
	"testing"
	"text/tabwriter"

	"github.com/davecgh/go-spew/spew"
	"github.com/pmezard/go-difflib/difflib"
)

// DumpArchiveFull renders every member of a .island archive (headers and
// content) into a deterministic textual form suitable for diffing.
func DumpArchiveFull(path string) (string, error) {
	spewConfig := spew.ConfigState{
		Indent:                  "  ",
		DisableMethods:          true,
		DisableCapacities:       true,
		DisablePointerAddresses: true,
		SortKeys:                true,
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", err
	}
	defer zr.Close()

	ret := new(strings.Builder)
	for _, member := range zr.File {
		header := struct {
			Name     string
			Method   uint16
			Modified string
			Mode     string
		}{
			Name:     member.Name,
			Method:   member.Method,
			Modified: member.Modified.UTC().Format("2006-01-02T15:04:05Z"),
			Mode:     member.Mode().String(),
		}
		if _, err := fmt.Fprintf(ret, "memberHeader = %s", spewConfig.Sdump(header)); err != nil {
			return "", err
		}

		reader, err := member.Open()
		if err != nil {
			return "", err
		}
		content, err := io.ReadAll(reader)
		_ = reader.Close()
		if err != nil {
			return "", err
		}
		if _, err := fmt.Fprintf(ret, "memberContent =%s", spewConfig.Sdump(content)); err != nil {
			return "", err
		}
	}

	return ret.String(), nil
}

// DumpArchiveListing renders just the member listing of a .island archive.
func DumpArchiveListing(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", err
	}
	defer zr.Close()

	ret := new(strings.Builder)
	table := tabwriter.NewWriter(
		ret, // output
		0,   // minwidth
		1,   // tabwidth
		1,   // padding
		' ', // padchar
		0)   // flags
	for _, member := range zr.File {
		if _, err := fmt.Fprintln(table, strings.Join([]string{
			"",
			member.Mode().String(),
			fmt.Sprintf("% 10d", member.UncompressedSize64),
			member.Name,
		}, "\t")); err != nil {
			return "", err
		}
	}
	if err := table.Flush(); err != nil {
		return "", err
	}

	return ret.String(), nil
}

// AssertEqualArchives asserts that two .island archives are member-for-member
// identical, failing with a readable diff when they are not.
func AssertEqualArchives(t *testing.T, expPath, actPath string) bool {
	t.Helper()

	// First just compare the listings, in order to "fail fast" and give more readable output.
	expStr, err := DumpArchiveListing(expPath)
	if err != nil {
		t.Errorf("error dumping expected archive listing: %v", err)
		return false
	}
	actStr, err := DumpArchiveListing(actPath)
	if err != nil {
		t.Errorf("error dumping actual archive listing: %v", err)
		return false
	}
	if expStr != actStr {
		diff, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        difflib.SplitLines(expStr),
			B:        difflib.SplitLines(actStr),
			FromFile: "Expected",
			FromDate: "",
			ToFile:   "Actual",
			ToDate:   "",
			Context:  1,
		})
		t.Errorf("Listing diff:\n%s", diff)
		return false
	}

	// OK, that passed, now do a more comprehensive diff.
	expStr, err = DumpArchiveFull(expPath)
	if err != nil {
		t.Errorf("error dumping expected archive: %v", err)
		return false
	}
	actStr, err = DumpArchiveFull(actPath)
	if err != nil {
		t.Errorf("error dumping actual archive: %v", err)
		return false
	}
	if expStr != actStr {
		diff, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        difflib.SplitLines(expStr),
			B:        difflib.SplitLines(actStr),
			FromFile: "Expected",
			FromDate: "",
			ToFile:   "Actual",
			ToDate:   "",
			Context:  1,
		})
		t.Errorf("Full diff:\n%s", diff)
		return false
	}

	return true
}
