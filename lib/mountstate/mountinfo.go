// Copyright 2026 The Ontofs Authors
// SPDX-License-Identifier: Apache-2.0

package mountstate

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// mountEntry is one parsed line of /proc/self/mountinfo.
type mountEntry struct {
	mountpoint string
	fsType     string
}

// parseMountinfo reads the kernel mount table in the mountinfo format
// (proc(5)): fixed fields, then optional fields terminated by a lone
// "-", then fstype and source. Mountpoint paths use octal escapes for
// whitespace and backslash.
func parseMountinfo(path string) ([]mountEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var entries []mountEntry
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 7 {
			continue
		}
		separator := -1
		for i := 6; i < len(fields); i++ {
			if fields[i] == "-" {
				separator = i
				break
			}
		}
		if separator < 0 || separator+1 >= len(fields) {
			continue
		}
		entries = append(entries, mountEntry{
			mountpoint: unescapeMountPath(fields[4]),
			fsType:     fields[separator+1],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning mountinfo: %w", err)
	}
	return entries, nil
}

// unescapeMountPath decodes the \ooo octal escapes the kernel uses
// for space, tab, newline, and backslash in mount paths.
func unescapeMountPath(path string) string {
	if !strings.ContainsRune(path, '\\') {
		return path
	}
	var out strings.Builder
	out.Grow(len(path))
	for i := 0; i < len(path); i++ {
		if path[i] == '\\' && i+3 < len(path) &&
			isOctal(path[i+1]) && isOctal(path[i+2]) && isOctal(path[i+3]) {
			out.WriteByte((path[i+1]-'0')<<6 | (path[i+2]-'0')<<3 | (path[i+3] - '0'))
			i += 3
			continue
		}
		out.WriteByte(path[i])
	}
	return out.String()
}

func isOctal(b byte) bool {
	return b >= '0' && b <= '7'
}
