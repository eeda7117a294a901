// Copyright (C) 2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package island

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/datawire/dlib/derror"

	"github.com/datawire/island/pkg/island/manifest"
	"github.com/datawire/island/pkg/python"
)

// Archive is the parsed, verified content of an .island file.
type Archive struct {
	Filename *FilenameData
	Manifest *manifest.Manifest
	// EntryPoints maps group name to entry name to "module:attr".
	EntryPoints map[string]map[string]string
	// Files lists the archive member paths, in archive order.
	Files []string
}

// Inspect opens and verifies an .island archive: the filename grammar,
// every RECORD hash, the manifest, and the entry-points file.
// Verification failures accumulate, so one report covers everything
// wrong with the file.
func Inspect(path string) (*Archive, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("inspect %q: %w", path, err)
	}
	defer zr.Close()
	return inspect(path, &zr.Reader)
}

func inspect(path string, zr *zip.Reader) (*Archive, error) {
	base := path
	if slash := strings.LastIndexAny(base, "/\\"); slash >= 0 {
		base = base[slash+1:]
	}
	nameData, err := ParseFilename(base)
	if err != nil {
		return nil, fmt.Errorf("inspect %q: %w", path, err)
	}
	distInfo := nameData.Name + "-" + nameData.Version + ".dist-info"

	members := make(map[string][]byte, len(zr.File))
	out := &Archive{Filename: nameData}
	for _, file := range zr.File {
		content, err := readMember(file)
		if err != nil {
			return nil, fmt.Errorf("inspect %q: %w", path, err)
		}
		members[file.Name] = content
		out.Files = append(out.Files, file.Name)
	}

	var errs derror.MultiError
	errs = append(errs, verifyRecord(distInfo+"/RECORD", members)...)

	manifestRaw, ok := members[distInfo+"/island.json"]
	if !ok {
		// Older apworld archives shipped the manifest inside the
		// package directory instead of dist-info.
		manifestRaw, ok = members[nameData.Name+"/archipelago.json"]
	}
	if !ok {
		errs = append(errs, fmt.Errorf("missing %s/island.json", distInfo))
	} else {
		parsed, err := manifest.Parse(manifestRaw)
		if err != nil {
			errs = append(errs, err)
		} else {
			out.Manifest = parsed
			if err := parsed.Validate(); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if epRaw, ok := members[distInfo+"/entry_points.txt"]; ok {
		entryPoints, err := parseEntryPoints(epRaw)
		if err != nil {
			errs = append(errs, fmt.Errorf("entry_points.txt: %w", err))
		} else {
			out.EntryPoints = entryPoints
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("inspect %q: %w", path, errs)
	}
	return out, nil
}

func readMember(file *zip.File) ([]byte, error) {
	reader, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file.Name, err)
	}
	defer reader.Close()
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file.Name, err)
	}
	return content, nil
}

// verifyRecord checks every RECORD row against the archive members and
// that every member is listed.
func verifyRecord(recordPath string, members map[string][]byte) []error {
	var errs []error
	recordRaw, ok := members[recordPath]
	if !ok {
		return []error{fmt.Errorf("missing %s", recordPath)}
	}

	listed := make(map[string]struct{}, len(members))
	rows, err := csv.NewReader(bytes.NewReader(recordRaw)).ReadAll()
	if err != nil {
		return []error{fmt.Errorf("%s: %w", recordPath, err)}
	}
	for _, row := range rows {
		if len(row) != 3 {
			errs = append(errs, fmt.Errorf("%s: malformed row %q", recordPath, strings.Join(row, ",")))
			continue
		}
		memberPath, hashField, sizeField := row[0], row[1], row[2]
		listed[memberPath] = struct{}{}

		content, ok := members[memberPath]
		if !ok {
			errs = append(errs, fmt.Errorf("%s lists %q, which is not in the archive", recordPath, memberPath))
			continue
		}
		if memberPath == recordPath {
			if hashField != "" || sizeField != "" {
				errs = append(errs, fmt.Errorf("%s must list itself with empty hash and size", recordPath))
			}
			continue
		}
		if size, err := strconv.ParseInt(sizeField, 10, 64); err != nil || size != int64(len(content)) {
			errs = append(errs, fmt.Errorf("%s: size mismatch for %q: recorded %s, actual %d",
				recordPath, memberPath, sizeField, len(content)))
		}
		algo, digest, err := python.ParseRecordHash(hashField)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %q: %w", recordPath, memberPath, err))
			continue
		}
		hasher := python.StrongHashes[algo]()
		hasher.Write(content)
		if !bytes.Equal(hasher.Sum(nil), digest) {
			errs = append(errs, fmt.Errorf("%s: hash mismatch for %q", recordPath, memberPath))
		}
	}
	for memberPath := range members {
		if _, ok := listed[memberPath]; !ok {
			errs = append(errs, fmt.Errorf("%s does not list archive member %q", recordPath, memberPath))
		}
	}
	sort.Slice(errs, func(i, j int) bool { return errs[i].Error() < errs[j].Error() })
	return errs
}

func parseEntryPoints(raw []byte) (map[string]map[string]string, error) {
	parser := python.NewConfigParser()
	config, err := parser.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	out := make(map[string]map[string]string, len(config))
	for group, section := range config {
		entries := make(map[string]string, len(section))
		for name, target := range section {
			entries[name] = target
		}
		out[group] = entries
	}
	return out, nil
}
