package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/gorilla/mux"
	"github.com/jinzhu/gorm"
)

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

// Builds a router backed by a fresh database seeded with one job report and
//  one configuration backup report.
func newTestAPI(t *testing.T) (*mux.Router, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open("sqlite3", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("unable to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	app = &App{}
	app.config.UICustomBrand = "Veeam Monitor"
	initDB(db)
	app.db = db

	p := NewPipeline(db, &fakeSource{})
	p.IngestMessage(RawMessage{Subject: "Veeam Daily report", DateHeader: "Mon, 12 May 2025 22:15:00 +0000", Body: jobReportBody})
	p.IngestMessage(RawMessage{Subject: "Configuration Backup", DateHeader: "Tue, 13 May 2025 22:30:00 +0000", Body: configReportBody})
	db.Model(&Email{}).Count(&app.emailCount)

	s := &HTTPServer{}
	r := mux.NewRouter()
	s.RegisterAPIRoutes(r)
	return r, db
}

func apiGet(t *testing.T, r *mux.Router, path string, resp interface{}) {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET %s returned status %d", path, w.Code)
	}
	if err := json.Unmarshal(w.Body.Bytes(), resp); err != nil {
		t.Fatalf("GET %s returned invalid json: %v", path, err)
	}
}

func TestAPIPing(t *testing.T) {
	r, _ := newTestAPI(t)
	var resp APIGeneralResp
	apiGet(t, r, "/api/ping", &resp)
	if resp.Status != APIOK {
		t.Errorf("status = %q, want %q", resp.Status, APIOK)
	}
}

func TestAPIConfig(t *testing.T) {
	r, _ := newTestAPI(t)
	var resp APIConfigResp
	apiGet(t, r, "/api/config", &resp)
	if resp.Status != APIOK || resp.CustomBrand != "Veeam Monitor" {
		t.Errorf("unexpected config response: %+v", resp)
	}
	if resp.EmailCount != 2 {
		t.Errorf("email count = %d, want 2", resp.EmailCount)
	}
}

func TestAPIEmails(t *testing.T) {
	r, _ := newTestAPI(t)

	var resp APIEmailListResp
	apiGet(t, r, "/api/emails", &resp)
	if resp.Status != APIOK || len(resp.Emails) != 2 {
		t.Fatalf("expected 2 emails, got %+v", resp)
	}
	// Newest first.
	if resp.Emails[0].Date != "2025-05-13" {
		t.Errorf("first email date = %q, want 2025-05-13", resp.Emails[0].Date)
	}

	var filtered APIEmailListResp
	apiGet(t, r, "/api/emails?date=2025-05-12", &filtered)
	if len(filtered.Emails) != 1 {
		t.Errorf("expected 1 email for 2025-05-12, got %d", len(filtered.Emails))
	}

	var bad APIEmailListResp
	apiGet(t, r, "/api/emails?date=12/05/2025", &bad)
	if bad.Status != APIERR || bad.Error != APIBadDate {
		t.Errorf("expected bad date error, got %+v", bad.APIGeneralResp)
	}
}

func TestAPIEmailNotFound(t *testing.T) {
	r, _ := newTestAPI(t)
	var resp APIEmailResp
	apiGet(t, r, "/api/email/no-such-uuid", &resp)
	if resp.Status != APIERR || resp.Error != APINoEmail {
		t.Errorf("expected not found response, got %+v", resp.APIGeneralResp)
	}
}

func TestAPIBackupJobs(t *testing.T) {
	r, db := newTestAPI(t)

	var resp APIJobListResp
	apiGet(t, r, "/api/backup-jobs", &resp)
	if len(resp.Jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(resp.Jobs))
	}

	// Both seeded jobs reported zero errors.
	var errResp APIJobListResp
	apiGet(t, r, "/api/backup-jobs/errors", &errResp)
	if len(errResp.Jobs) != 0 {
		t.Errorf("expected no error jobs, got %d", len(errResp.Jobs))
	}

	failed := BackupJob{EmailUUID: resp.Jobs[0].EmailUUID, JobName: "Broken", SummaryError: "2"}
	if err := db.Create(&failed).Error; err != nil {
		t.Fatalf("unable to seed failed job: %v", err)
	}
	apiGet(t, r, "/api/backup-jobs/errors", &errResp)
	if len(errResp.Jobs) != 1 || errResp.Jobs[0].JobName != "Broken" {
		t.Errorf("expected the failed job, got %+v", errResp.Jobs)
	}
}

func TestAPIBackupJobWithVMs(t *testing.T) {
	r, db := newTestAPI(t)

	var job BackupJob
	if err := db.Where("job_name = ?", "Daily VMs").First(&job).Error; err != nil {
		t.Fatalf("job not seeded: %v", err)
	}

	var resp APIJobResp
	apiGet(t, r, "/api/backup-job/"+itoa(job.ID), &resp)
	if resp.Status != APIOK || resp.Job.JobName != "Daily VMs" {
		t.Errorf("unexpected job response: %+v", resp)
	}

	var vms APIVMListResp
	apiGet(t, r, "/api/backup-vms/by-job/"+itoa(job.ID), &vms)
	if len(vms.VMs) != 2 {
		t.Errorf("expected 2 VM rows, got %d", len(vms.VMs))
	}

	var missing APIJobResp
	apiGet(t, r, "/api/backup-job/99999", &missing)
	if missing.Status != APIERR || missing.Error != APINoJob {
		t.Errorf("expected not found response, got %+v", missing.APIGeneralResp)
	}
}

func TestAPIConfigBackups(t *testing.T) {
	r, _ := newTestAPI(t)

	var resp APIConfigBackupListResp
	apiGet(t, r, "/api/config-backups", &resp)
	if len(resp.ConfigBackups) != 1 {
		t.Fatalf("expected 1 config backup, got %d", len(resp.ConfigBackups))
	}
	backup := resp.ConfigBackups[0]
	if backup.Server != "SRV-VBR01" || backup.CatalogsProcessed != 5 {
		t.Errorf("unexpected config backup: %+v", backup)
	}

	var catalogs APICatalogListResp
	apiGet(t, r, "/api/config-catalogs/by-config/"+itoa(backup.ID), &catalogs)
	if len(catalogs.Catalogs) != 3 {
		t.Errorf("expected 3 catalog rows, got %d", len(catalogs.Catalogs))
	}
}

func TestAPINoEndpoint(t *testing.T) {
	r, _ := newTestAPI(t)
	var resp APIGeneralResp
	apiGet(t, r, "/api/does-not-exist", &resp)
	if resp.Status != APIERR || resp.Error != APINoEndpoint {
		t.Errorf("expected no endpoint response, got %+v", resp)
	}
}
