package main

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

// A report email carrying a VM backup job, an agent backup job and one legacy
//  host/status line ahead of the first job section.
const jobReportBody = `Veeam Backup & Replication
WEB01    10.0.0.5    Warning

Backup job: Daily VMs
Created by ADTSA\backup.admin at 12/05/2025 19:00:00
6 of 6 VMs processed

*Success* 5 *Warning* 1 *Error* 0
*Start time* 19:00:43 *End time* 21:38:10 *Duration* 2:37:27
*Total size* 1,2 TB *Backup size* 250,4 GB
*Data read* 800,1 GB *Dedupe* 1.5x
*Transferred* 120,9 GB *Compression* 2.1x

Details
*Name* *Status* *Start time* *End time* *Size* *Read* *Transferred* *Duration* *Details*
SRV-DB01      Success   19:00:43   19:21:40   100 GB   29,5 GB   13,3 GB   0:20:56
SRV-APP02     Warning   19:21:41   19:50:02   250 GB   80,0 GB   40,1 GB   0:28:21   Guest indexing disabled

Agent Backup job: FS-AGENT01
Created by ADTSA\svc.backup at 12/05/2025 21:00:00
1 of 1 hosts processed

*Success* 1 *Warning* 0 *Error* 0
*Start time* 21:00:05 *End time* 21:12:44 *Duration* 0:12:39
*Total size* 80 GB *Backup size* 12,1 GB
*Data read* 15,0 GB *Dedupe* 1.1x
*Transferred* 11,9 GB *Compression* 1.3x
`

// A configuration backup report with a catalog table mixing well separated
//  columns, a name containing a space and a single-space separated row.
const configReportBody = `Configuration Backup for SRV-VBR01
To: Default Backup Repository
Success
5 catalogs processed

12 de maio de 2025 22:00:03
Start time 22:00:03 End time 22:00:41
Data size 27,4 MB Backup size 9,8 MB
Duration 0:00:38 Compression 2,8x
Details
Catalog   Items   Size   Packed
Jobs          44    1,2 MB    0,4 MB
Security Settings   2   12,5 KB   4,1 KB
Credentials 12 1,1 KB 0,5 KB
`

func TestIsConfigBackupEmail(t *testing.T) {
	if IsConfigBackupEmail(jobReportBody) {
		t.Error("job report classified as configuration backup")
	}
	if !IsConfigBackupEmail(configReportBody) {
		t.Error("configuration backup report not recognized")
	}
	if IsConfigBackupEmail("") {
		t.Error("empty body classified as configuration backup")
	}
}

func TestExtractJobs(t *testing.T) {
	want := []ParsedJob{
		{
			Info: JobInfo{
				JobName:           "Daily VMs",
				CreatedBy:         `ADTSA\backup.admin`,
				CreatedAt:         "12/05/2025 19:00:00",
				ProcessedVMs:      "6",
				ProcessedVMsTotal: "6",
				SummarySuccess:    "5",
				StartTime:         "19:00:43",
				TotalSize:         "1,2 TB",
				BackupSize:        "250,4 GB",
				SummaryWarning:    "1",
				EndTime:           "21:38:10",
				DataRead:          "800,1 GB",
				Dedupe:            "1.5x",
				SummaryError:      "0",
				Duration:          "2:37:27",
				Transferred:       "120,9 GB",
				Compression:       "2.1x",
			},
			VMs: []VMDetail{
				{
					Name:        "SRV-DB01",
					Status:      "Success",
					StartTime:   "19:00:43",
					EndTime:     "19:21:40",
					Size:        "100 GB",
					Read:        "29.5 GB",
					Transferred: "13.3 GB",
					Duration:    "0:20:56",
				},
				{
					Name:        "SRV-APP02",
					Status:      "Warning",
					StartTime:   "19:21:41",
					EndTime:     "19:50:02",
					Size:        "250 GB",
					Read:        "80.0 GB",
					Transferred: "40.1 GB",
					Duration:    "0:28:21",
					Details:     "Guest indexing disabled",
				},
			},
		},
		{
			Info: JobInfo{
				JobName:           "FS-AGENT01",
				CreatedBy:         `ADTSA\svc.backup`,
				CreatedAt:         "12/05/2025 21:00:00",
				ProcessedVMs:      "1",
				ProcessedVMsTotal: "1",
				SummarySuccess:    "1",
				StartTime:         "21:00:05",
				TotalSize:         "80 GB",
				BackupSize:        "12,1 GB",
				SummaryWarning:    "0",
				EndTime:           "21:12:44",
				DataRead:          "15,0 GB",
				Dedupe:            "1.1x",
				SummaryError:      "0",
				Duration:          "0:12:39",
				Transferred:       "11,9 GB",
				Compression:       "1.3x",
			},
		},
	}

	got := ExtractJobs(jobReportBody)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ExtractJobs mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractJobsNoMarker(t *testing.T) {
	if jobs := ExtractJobs("Nothing resembling a report here.\n"); jobs != nil {
		t.Errorf("expected no jobs, got %v", jobs)
	}
}

// The same section appearing twice in one body must come out once.
func TestExtractJobsDeduplicates(t *testing.T) {
	body := "Backup job: Nightly\n" +
		`Created by ADTSA\backup.admin at 12/05/2025 23:00:00` + "\n" +
		"Backup job: Nightly\n" +
		`Created by ADTSA\backup.admin at 12/05/2025 23:00:00` + "\n"
	jobs := ExtractJobs(body)
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
	if jobs[0].Info.JobName != "Nightly" {
		t.Errorf("job name = %q, want %q", jobs[0].Info.JobName, "Nightly")
	}
}

// A section with a job marker but no extractable name is dropped.
func TestExtractJobsMalformedSection(t *testing.T) {
	if jobs := ExtractJobs("Backup job:\n\t\n"); jobs != nil {
		t.Errorf("expected no jobs, got %v", jobs)
	}
}

// Single-space separated rows fall back to word splitting, split size columns
//  must be glued back to their unit.
func TestExtractVMDetailsSingleSpaceRow(t *testing.T) {
	segment := "Details\n" +
		"*Name* *Status* *Start time* *End time* *Size* *Read* *Transferred* *Duration* *Details*\n" +
		"HOST1 Success 19:00:43 19:21:40 100 GB 29,5 GB 13,3 GB 0:20:56\n"
	want := []VMDetail{
		{
			Name:        "HOST1",
			Status:      "Success",
			StartTime:   "19:00:43",
			EndTime:     "19:21:40",
			Size:        "100 GB",
			Read:        "29.5 GB",
			Transferred: "13.3 GB",
			Duration:    "0:20:56",
		},
	}
	if diff := cmp.Diff(want, extractVMDetails(segment)); diff != "" {
		t.Errorf("extractVMDetails mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractConfigBackupInfo(t *testing.T) {
	want := &ConfigBackupInfo{
		Server:            "SRV-VBR01",
		Repository:        "Default Backup Repository",
		Status:            "Success",
		CatalogsProcessed: 5,
		BackupDate:        "12 de maio de 2025 22:00:03",
		StartTime:         "22:00:03",
		EndTime:           "22:00:41",
		DataSize:          "27,4 MB",
		BackupSize:        "9,8 MB",
		Duration:          "0:00:38",
		Compression:       "2,8x",
		Catalogs: []CatalogItem{
			{Name: "Jobs", Items: "44", Size: "1,2 MB", Packed: "0,4 MB"},
			{Name: "Security Settings", Items: "2", Size: "12,5 KB", Packed: "4,1 KB"},
			{Name: "Credentials", Items: "12", Size: "1,1 KB", Packed: "0,5 KB"},
		},
	}
	got := ExtractConfigBackupInfo(configReportBody)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ExtractConfigBackupInfo mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractConfigBackupInfoNoServer(t *testing.T) {
	if info := ExtractConfigBackupInfo("Success\n5 catalogs processed\n"); info != nil {
		t.Errorf("expected nil without a server line, got %+v", info)
	}
}

// Multiple warning blocks join with a separator, each block runs until the
//  next summary marker.
func TestExtractConfigBackupWarnings(t *testing.T) {
	body := `Configuration Backup for SRV-VBR02
Warning
Repository is running low on free space
consider extending the quota
End time 23:10:02
Warning
Security catalog skipped
Duration 0:01:12
`
	info := ExtractConfigBackupInfo(body)
	if info == nil {
		t.Fatal("expected a config backup record")
	}
	if info.Status != "Warning" {
		t.Errorf("status = %q, want %q", info.Status, "Warning")
	}
	wantWarnings := "Repository is running low on free space consider extending the quota | Security catalog skipped"
	if info.Warnings != wantWarnings {
		t.Errorf("warnings = %q, want %q", info.Warnings, wantWarnings)
	}
}

func TestExtractHostStatus(t *testing.T) {
	body := "Report header\n" +
		"WEB01 10.0.0.5 Warning\n" +
		"DB02\t192.168.1.20\tSuccess\n" +
		"not a host line\n" +
		"BAD 10.0.0 Error\n"
	want := []HostStatus{
		{Host: "WEB01", IP: "10.0.0.5", Status: "Warning"},
		{Host: "DB02", IP: "192.168.1.20", Status: "Success"},
	}
	if diff := cmp.Diff(want, ExtractHostStatus(body)); diff != "" {
		t.Errorf("ExtractHostStatus mismatch (-want +got):\n%s", diff)
	}
}
