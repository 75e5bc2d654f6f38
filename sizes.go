package main

import (
	"regexp"
	"strings"
)

// Matches the leading number and unit of a report size field. Both "," and "."
//  are accepted as the decimal separator, the unit may touch the number.
var rxSizeField = regexp.MustCompile(`(?i)^\s*([\d\.,]+)\s*([KMGTP]?B)`)

// Report size fields arrive in whatever locale the sending server runs with,
//  "29,5 GB" and "100GB" both happen. This normalizes them to "<number> <UNIT>"
//  with a dot decimal separator so the values compare and display consistently.
// Fields without a recognizable unit keep their first token and are assumed
//  to be plain bytes. Blank input stays blank.
func CleanSizeField(value string) string {
	matches := rxSizeField.FindStringSubmatch(value)
	if len(matches) == 3 {
		num := strings.ReplaceAll(matches[1], ",", ".")
		unit := strings.ToUpper(matches[2])
		return num + " " + unit
	}
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return ""
	}
	return fields[0] + " B"
}
