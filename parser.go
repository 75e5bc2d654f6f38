package main

import (
	"regexp"
	"strconv"
	"strings"
)

// Parsed fields of one backup job section. Reports are tolerant free text,
//  every field besides JobName is optional and left blank when its pattern
//  does not match.
type JobInfo struct {
	JobName           string
	CreatedBy         string
	CreatedAt         string
	ProcessedVMs      string
	ProcessedVMsTotal string
	SummarySuccess    string
	StartTime         string
	TotalSize         string
	BackupSize        string
	SummaryWarning    string
	EndTime           string
	DataRead          string
	Dedupe            string
	SummaryError      string
	Duration          string
	Transferred       string
	Compression       string
}

// One line of a job's per-machine details table.
type VMDetail struct {
	Name        string
	Status      string
	StartTime   string
	EndTime     string
	Size        string
	Read        string
	Transferred string
	Duration    string
	Details     string
}

// A job together with the machines reported under it.
type ParsedJob struct {
	Info JobInfo
	VMs  []VMDetail
}

// Parsed fields of a configuration backup report.
type ConfigBackupInfo struct {
	Server            string
	Repository        string
	Status            string
	CatalogsProcessed int
	BackupDate        string
	StartTime         string
	EndTime           string
	DataSize          string
	BackupSize        string
	Duration          string
	Compression       string
	Warnings          string
	Catalogs          []CatalogItem
}

// One line of a configuration backup's catalog table.
type CatalogItem struct {
	Name   string
	Items  string
	Size   string
	Packed string
}

// One host/status line found by the legacy tabular extraction.
type HostStatus struct {
	Host   string
	IP     string
	Status string
}

// A job section starts at either marker. "Agent Backup job:" contains
//  "Backup job:", leftmost matching takes care of picking the right one.
var rxJobMarker = regexp.MustCompile(`(?:Agent )?Backup job:`)

// The summary blocks of a report render as a visual table which linearizes
//  into interleaved label/value pairs, hence the non-greedy gaps between
//  labels. Each extractor owns exactly one pattern so the fields can be
//  tested and adjusted independently.
var jobFieldExtractors = []struct {
	name   string
	re     *regexp.Regexp
	assign func(job *JobInfo, m []string)
}{
	{
		"job_name",
		regexp.MustCompile(`(?:Agent )?Backup job:[ \t]*([^\r\n]+)`),
		func(job *JobInfo, m []string) { job.JobName = strings.TrimSpace(m[1]) },
	},
	{
		// The principal must carry a domain separator, plain prose
		//  containing "Created by" should not match.
		"created",
		regexp.MustCompile(`Created by ([^\\]+\\[^\s]+) at ([\d/]+ [\d:]+)`),
		func(job *JobInfo, m []string) { job.CreatedBy = m[1]; job.CreatedAt = m[2] },
	},
	{
		"processed",
		regexp.MustCompile(`(\d+) of (\d+) (?:VMs|hosts) processed`),
		func(job *JobInfo, m []string) { job.ProcessedVMs = m[1]; job.ProcessedVMsTotal = m[2] },
	},
	{
		"success_block",
		regexp.MustCompile(`(?s)\*Success\*\s*(\d+).*?\*Start time\*\s*([\d:]+).*?\*Total size\*\s*([^*]+)\*Backup size\*\s*([^\n]+)`),
		func(job *JobInfo, m []string) {
			job.SummarySuccess = m[1]
			job.StartTime = m[2]
			job.TotalSize = strings.TrimSpace(m[3])
			job.BackupSize = strings.TrimSpace(m[4])
		},
	},
	{
		"warning_block",
		regexp.MustCompile(`(?s)\*Warning\*\s*(\d+).*?\*End time\*\s*([\d:]+).*?\*Data read\*\s*([^*]+)\*Dedupe\*\s*([^\n]+)`),
		func(job *JobInfo, m []string) {
			job.SummaryWarning = m[1]
			job.EndTime = m[2]
			job.DataRead = strings.TrimSpace(m[3])
			job.Dedupe = strings.TrimSpace(m[4])
		},
	},
	{
		"error_block",
		regexp.MustCompile(`(?s)\*Error\*\s*(\d+).*?\*Duration\*\s*([\d:]+).*?\*Transferred\*\s*([^*]+)\*Compression\*\s*([^\n]+)`),
		func(job *JobInfo, m []string) {
			job.SummaryError = m[1]
			job.Duration = m[2]
			job.Transferred = strings.TrimSpace(m[3])
			job.Compression = strings.TrimSpace(m[4])
		},
	},
}

var (
	rxConfigMarker   = regexp.MustCompile(`(?m)^Configuration Backup for `)
	rxVMTableHeader  = regexp.MustCompile(`(?s)Details\s*\*Name\*.*?\*Details\*\n`)
	rxVMTimeBoundary = regexp.MustCompile(` (\d{2}:\d{2}:\d{2})`)
	rxColumnSplit    = regexp.MustCompile(`\s{2,}|\t`)
	rxHostStatusLine = regexp.MustCompile(`(?m)^(\S+)[ \t]+(\d+\.\d+\.\d+\.\d+)[ \t]+(Success|Warning|Error)`)
)

var (
	rxConfigServer      = regexp.MustCompile(`(?m)^Configuration Backup for ([^\r\n]+)`)
	rxConfigRepository  = regexp.MustCompile(`(?m)^To:[ \t]*([^\r\n]+)`)
	rxConfigStatus      = regexp.MustCompile(`(?m)^(Success|Warning|Error)[ \t]*\r?$`)
	rxConfigCatalogs    = regexp.MustCompile(`(?m)^(\d+) catalogs processed`)
	rxConfigBackupDate  = regexp.MustCompile(`(?m)^(\d{1,2} de .+? \d{4} \d{2}:\d{2}:\d{2})`)
	rxConfigStartTime   = regexp.MustCompile(`Start time (\d{2}:\d{2}:\d{2})`)
	rxConfigEndTime     = regexp.MustCompile(`End time (\d{2}:\d{2}:\d{2})`)
	rxConfigDataSize    = regexp.MustCompile(`(?i)Data size ([\d\.,]+\s*[KMGTP]?B)`)
	rxConfigBackupSize  = regexp.MustCompile(`(?i)Backup size ([\d\.,]+\s*[KMGTP]?B)`)
	rxConfigDuration    = regexp.MustCompile(`Duration ([\d:]+)`)
	rxConfigCompression = regexp.MustCompile(`Compression ([\d\.,x]+)`)
	rxWarningLine       = regexp.MustCompile(`Warning[^\n]*\n`)
	rxWarningEnd        = regexp.MustCompile(`\n\d{2}/\d{2}/\d{4}|\nEnd time|\nDuration|\nCompression`)
	rxCatalogHeader     = regexp.MustCompile(`Details[ \t]*\r?\nCatalog\s+Items\s+Size\s+Packed[^\n]*\n`)
	rxSizeUnit          = regexp.MustCompile(`(?i)^[KMGTP]?B$`)
	rxNumber            = regexp.MustCompile(`^[\d\.,]+$`)
	rxDigits            = regexp.MustCompile(`^\d+$`)
)

// A configuration backup report announces itself with a line starting with
//  "Configuration Backup for". The marker is not always at the start of the
//  body, so this is checked per line rather than as a prefix.
func IsConfigBackupEmail(body string) bool {
	return rxConfigMarker.MatchString(body)
}

// Splits the body into job sections and parses each independently.
// Re-fetched emails and overlapping summary tables can make the same section
//  show up twice, so jobs are deduplicated here as well as at the store.
func ExtractJobs(body string) []ParsedJob {
	markers := rxJobMarker.FindAllStringIndex(body, -1)
	if len(markers) == 0 {
		return nil
	}

	type jobKey struct {
		name, startTime, endTime, createdBy, createdAt string
	}
	seen := make(map[jobKey]bool)

	var jobs []ParsedJob
	for i, marker := range markers {
		end := len(body)
		if i+1 < len(markers) {
			end = markers[i+1][0]
		}
		segment := body[marker[0]:end]

		// A section without an extractable name is a malformed/truncated
		//  report, it is dropped rather than stored half empty.
		info, ok := extractJobInfo(segment)
		if !ok {
			continue
		}
		key := jobKey{info.JobName, info.StartTime, info.EndTime, info.CreatedBy, info.CreatedAt}
		if seen[key] {
			continue
		}
		seen[key] = true

		jobs = append(jobs, ParsedJob{Info: info, VMs: extractVMDetails(segment)})
	}
	return jobs
}

// Runs each field extractor against a single job section.
func extractJobInfo(segment string) (JobInfo, bool) {
	var job JobInfo
	for _, extractor := range jobFieldExtractors {
		matches := extractor.re.FindStringSubmatch(segment)
		if matches != nil {
			extractor.assign(&job, matches)
		}
	}
	return job, job.JobName != ""
}

// Parses the per-machine details table of a job section. The section already
//  ends before the next job marker, everything after the table header belongs
//  to this job.
func extractVMDetails(segment string) []VMDetail {
	header := rxVMTableHeader.FindStringIndex(segment)
	if header == nil {
		return nil
	}

	type vmKey struct {
		name, startTime, endTime, status string
	}
	seen := make(map[vmKey]bool)

	var vms []VMDetail
	for _, line := range strings.Split(strings.TrimSpace(segment[header[1]:]), "\n") {
		parts := splitVMLine(strings.TrimSpace(line))
		if len(parts) < 8 {
			continue
		}
		vm := VMDetail{
			Name:        parts[0],
			Status:      parts[1],
			StartTime:   parts[2],
			EndTime:     parts[3],
			Size:        CleanSizeField(parts[4]),
			Read:        CleanSizeField(parts[5]),
			Transferred: CleanSizeField(parts[6]),
			Duration:    parts[7],
		}
		if len(parts) > 8 {
			vm.Details = strings.Join(parts[8:], " ")
		}
		key := vmKey{vm.Name, vm.StartTime, vm.EndTime, vm.Status}
		if seen[key] {
			continue
		}
		seen[key] = true
		vms = append(vms, vm)
	}
	return vms
}

// Table rows separate columns with runs of 2+ spaces or tabs, but short
//  fields sometimes collapse the separator before a time column to a single
//  space. Marking those boundaries first keeps the column count stable.
// Rows that still come up short are retried with plain word splitting, which
//  breaks size columns like "29,5 GB" apart; a number followed by a bare unit
//  token is glued back together.
func splitVMLine(line string) []string {
	marked := rxVMTimeBoundary.ReplaceAllString(line, "\t$1")
	var parts []string
	for _, part := range rxColumnSplit.Split(marked, -1) {
		if part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) < 9 {
		parts = mergeSizeTokens(strings.Fields(line))
	}
	return parts
}

func mergeSizeTokens(tokens []string) []string {
	var merged []string
	for i := 0; i < len(tokens); i++ {
		if i+1 < len(tokens) && rxNumber.MatchString(tokens[i]) && rxSizeUnit.MatchString(tokens[i+1]) {
			merged = append(merged, tokens[i]+" "+tokens[i+1])
			i++
			continue
		}
		merged = append(merged, tokens[i])
	}
	return merged
}

// Parses a configuration backup report out of the whole body. Every field is
//  optional except the server name, without it there is no record.
func ExtractConfigBackupInfo(body string) *ConfigBackupInfo {
	matches := rxConfigServer.FindStringSubmatch(body)
	if matches == nil {
		return nil
	}
	info := &ConfigBackupInfo{Server: strings.TrimSpace(matches[1])}

	if m := rxConfigRepository.FindStringSubmatch(body); m != nil {
		info.Repository = strings.TrimSpace(m[1])
	}
	if m := rxConfigStatus.FindStringSubmatch(body); m != nil {
		info.Status = m[1]
	}
	if m := rxConfigCatalogs.FindStringSubmatch(body); m != nil {
		info.CatalogsProcessed = atoi(m[1])
	}
	if m := rxConfigBackupDate.FindStringSubmatch(body); m != nil {
		info.BackupDate = m[1]
	}
	if m := rxConfigStartTime.FindStringSubmatch(body); m != nil {
		info.StartTime = m[1]
	}
	if m := rxConfigEndTime.FindStringSubmatch(body); m != nil {
		info.EndTime = m[1]
	}
	if m := rxConfigDataSize.FindStringSubmatch(body); m != nil {
		info.DataSize = strings.TrimSpace(m[1])
	}
	if m := rxConfigBackupSize.FindStringSubmatch(body); m != nil {
		info.BackupSize = strings.TrimSpace(m[1])
	}
	if m := rxConfigDuration.FindStringSubmatch(body); m != nil {
		info.Duration = m[1]
	}
	if m := rxConfigCompression.FindStringSubmatch(body); m != nil {
		info.Compression = m[1]
	}
	info.Warnings = extractWarnings(body)
	info.Catalogs = extractCatalogs(body)
	return info
}

// Collects the text blocks following "Warning" lines. A block runs until the
//  next date line or the next summary marker, multiple blocks join with " | ".
func extractWarnings(body string) string {
	var warnings []string
	pos := 0
	for {
		loc := rxWarningLine.FindStringIndex(body[pos:])
		if loc == nil {
			break
		}
		start := pos + loc[1]
		rest := body[start:]
		end := len(rest)
		if m := rxWarningEnd.FindStringIndex(rest); m != nil {
			end = m[0]
		}
		block := strings.TrimSpace(rest[:end])
		if block != "" {
			warnings = append(warnings, strings.ReplaceAll(block, "\n", " "))
		}
		pos = start + end
	}
	return strings.Join(warnings, " | ")
}

// Parses the catalog table of a configuration backup report. Catalog names
//  can contain spaces, which only the word-split fallback path confuses with
//  column separators; non-numeric leading tokens are merged back into the
//  name and split size columns are rejoined with their unit.
func extractCatalogs(body string) []CatalogItem {
	header := rxCatalogHeader.FindStringIndex(body)
	if header == nil {
		return nil
	}

	var catalogs []CatalogItem
	for _, line := range strings.Split(body[header[1]:], "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		var parts []string
		for _, part := range rxColumnSplit.Split(line, -1) {
			if part != "" {
				parts = append(parts, part)
			}
		}
		if len(parts) < 4 {
			parts = strings.Fields(line)
		}
		for len(parts) > 4 && !rxDigits.MatchString(parts[1]) {
			parts = append([]string{parts[0] + " " + parts[1]}, parts[2:]...)
		}
		if len(parts) >= 6 && rxSizeUnit.MatchString(parts[3]) && rxSizeUnit.MatchString(parts[5]) {
			parts = []string{parts[0], parts[1], parts[2] + " " + parts[3], parts[4] + " " + parts[5]}
		}
		if len(parts) < 4 {
			continue
		}
		catalogs = append(catalogs, CatalogItem{
			Name:   parts[0],
			Items:  parts[1],
			Size:   parts[2],
			Packed: parts[3],
		})
	}
	return catalogs
}

// The catalogs-processed count already matched \d+, conversion cannot fail.
func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// The legacy tabular extraction. Scans every line for "<host> <ip> <status>"
//  regardless of what kind of report the body is.
func ExtractHostStatus(body string) []HostStatus {
	var rows []HostStatus
	for _, m := range rxHostStatusLine.FindAllStringSubmatch(body, -1) {
		rows = append(rows, HostStatus{Host: m[1], IP: m[2], Status: m[3]})
	}
	return rows
}
