package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/jinzhu/gorm"
)

// Commonly used strings.
const (
	APIOK             = "ok"
	APIERR            = "error"
	APINoEndpoint     = "No endpoint found"
	APINoEmail        = "Email was not found"
	APINoJob          = "Backup job was not found"
	APINoConfigBackup = "Config backup was not found"
	APIBadDate        = "Invalid date format. Use YYYY-MM-DD"
)

// Main response structure.
type APIGeneralResp struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// Response with configuration.
type APIConfigResp struct {
	APIGeneralResp
	CustomBrand string `json:"custom_brand"`
	EmailCount  uint   `json:"email_count"`
}

// Response with email entries.
type APIEmailListResp struct {
	APIGeneralResp
	Emails []Email `json:"emails"`
}

// Response with a single email entry.
type APIEmailResp struct {
	APIGeneralResp
	Email Email `json:"email"`
}

// Response with legacy host/status rows.
type APIEmailDataResp struct {
	APIGeneralResp
	Data []EmailData `json:"data"`
}

// Response with backup job entries.
type APIJobListResp struct {
	APIGeneralResp
	Jobs []BackupJob `json:"jobs"`
}

// Response with a single backup job.
type APIJobResp struct {
	APIGeneralResp
	Job BackupJob `json:"job"`
}

// Response with per-machine rows.
type APIVMListResp struct {
	APIGeneralResp
	VMs []BackupVM `json:"vms"`
}

// Response with config backup entries.
type APIConfigBackupListResp struct {
	APIGeneralResp
	ConfigBackups []ConfigBackup `json:"config_backups"`
}

// Response with a single config backup.
type APIConfigBackupResp struct {
	APIGeneralResp
	ConfigBackup ConfigBackup `json:"config_backup"`
}

// Response with catalog rows.
type APICatalogListResp struct {
	APIGeneralResp
	Catalogs []ConfigCatalog `json:"catalogs"`
}

// Typical API responses are done with JSON. To make it easier to respond, this function will marshal/send json to a response writer.
func (s *HTTPServer) JSONResponse(w http.ResponseWriter, resp interface{}) {
	// Encode response as json.
	js, err := json.Marshal(resp)
	if err != nil {
		// Error should not happen normally...
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	// If no error, we can set content type header and send response.
	w.Header().Set("Content-Type", "application/json")
	w.Write(js)
}

// There are quite a few request that send a general response on error. This function is to make it easy to build/send a general response.
func (s *HTTPServer) APISendGeneralResp(w http.ResponseWriter, status, error string) {
	resp := APIGeneralResp{}
	resp.Status = status
	resp.Error = error
	s.JSONResponse(w, resp)
}

// A database failure on the query path is a failure of that request only, the
//  client gets a 500 and nothing else changes.
func (s *HTTPServer) dbError(w http.ResponseWriter, err error) bool {
	if err != nil && !gorm.IsRecordNotFoundError(err) {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return true
	}
	return false
}

// Parses the id route variable of a child table route.
func muxID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id
}

// Setup HTTP router with routes for the API calls.
func (s *HTTPServer) RegisterAPIRoutes(r *mux.Router) {
	api := r.PathPrefix("/api").Subrouter()
	// Just a test call.
	api.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		s.APISendGeneralResp(w, APIOK, "")
	})

	// Retrieve the configuration.
	api.HandleFunc("/config", func(w http.ResponseWriter, r *http.Request) {
		resp := APIConfigResp{}
		resp.Status = APIOK
		resp.CustomBrand = app.config.UICustomBrand
		resp.EmailCount = app.emailCount
		s.JSONResponse(w, resp)
	})

	// Retrieve ingested emails, newest first, optionally for a single date.
	api.HandleFunc("/emails", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm() // r.Form isn't filled unless we first parse.
		date := r.Form.Get("date")

		query := app.db.Order("date desc, sent_time desc")
		if date != "" {
			if _, err := time.Parse("2006-01-02", date); err != nil {
				s.APISendGeneralResp(w, APIERR, APIBadDate)
				return
			}
			query = query.Where("date = ?", date)
		}

		var emails []Email
		if s.dbError(w, query.Find(&emails).Error) {
			return
		}
		resp := APIEmailListResp{}
		resp.Status = APIOK
		resp.Emails = emails
		s.JSONResponse(w, resp)
	})

	// Pull a single email entry.
	api.HandleFunc("/email/{id}", func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r) // Parses the variable matched in the request URI.
		UUID := vars["id"]

		resp := APIEmailResp{}
		var email Email
		if s.dbError(w, app.db.Where("uuid = ?", UUID).First(&email).Error) {
			return
		}
		// If return UUID is blank, we didn't find an entry.
		if email.UUID == "" {
			resp.Status = APIERR
			resp.Error = APINoEmail
			s.JSONResponse(w, resp)
			return
		}
		resp.Status = APIOK
		resp.Email = email
		s.JSONResponse(w, resp)
	})

	// Legacy host/status rows, optionally for a single date.
	api.HandleFunc("/email-data", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		date := r.Form.Get("date")

		query := app.db.Order("date desc, host")
		if date != "" {
			if _, err := time.Parse("2006-01-02", date); err != nil {
				s.APISendGeneralResp(w, APIERR, APIBadDate)
				return
			}
			query = query.Where("date = ?", date)
		}

		var data []EmailData
		if s.dbError(w, query.Find(&data).Error) {
			return
		}
		resp := APIEmailDataResp{}
		resp.Status = APIOK
		resp.Data = data
		s.JSONResponse(w, resp)
	})

	// Legacy host/status rows of one email.
	api.HandleFunc("/email-data/by-email/{id}", func(w http.ResponseWriter, r *http.Request) {
		var data []EmailData
		if s.dbError(w, app.db.Where("email_uuid = ?", mux.Vars(r)["id"]).Order("host").Find(&data).Error) {
			return
		}
		resp := APIEmailDataResp{}
		resp.Status = APIOK
		resp.Data = data
		s.JSONResponse(w, resp)
	})

	// All backup jobs, newest first.
	api.HandleFunc("/backup-jobs", func(w http.ResponseWriter, r *http.Request) {
		var jobs []BackupJob
		if s.dbError(w, app.db.Order("id desc").Find(&jobs).Error) {
			return
		}
		resp := APIJobListResp{}
		resp.Status = APIOK
		resp.Jobs = jobs
		s.JSONResponse(w, resp)
	})

	// Backup jobs which reported at least one error.
	api.HandleFunc("/backup-jobs/errors", func(w http.ResponseWriter, r *http.Request) {
		var jobs []BackupJob
		if s.dbError(w, app.db.Where("summary_error <> '' AND summary_error <> '0'").Order("id desc").Find(&jobs).Error) {
			return
		}
		resp := APIJobListResp{}
		resp.Status = APIOK
		resp.Jobs = jobs
		s.JSONResponse(w, resp)
	})

	// Backup jobs of one email.
	api.HandleFunc("/backup-jobs/by-email/{id}", func(w http.ResponseWriter, r *http.Request) {
		var jobs []BackupJob
		if s.dbError(w, app.db.Where("email_uuid = ?", mux.Vars(r)["id"]).Find(&jobs).Error) {
			return
		}
		resp := APIJobListResp{}
		resp.Status = APIOK
		resp.Jobs = jobs
		s.JSONResponse(w, resp)
	})

	// Backup jobs with errors of one email.
	api.HandleFunc("/backup-jobs/errors/by-email/{id}", func(w http.ResponseWriter, r *http.Request) {
		var jobs []BackupJob
		if s.dbError(w, app.db.Where("email_uuid = ? AND summary_error <> '' AND summary_error <> '0'", mux.Vars(r)["id"]).Find(&jobs).Error) {
			return
		}
		resp := APIJobListResp{}
		resp.Status = APIOK
		resp.Jobs = jobs
		s.JSONResponse(w, resp)
	})

	// Pull a single backup job.
	api.HandleFunc("/backup-job/{id:[0-9]+}", func(w http.ResponseWriter, r *http.Request) {
		resp := APIJobResp{}
		var job BackupJob
		if s.dbError(w, app.db.Where("id = ?", muxID(r)).First(&job).Error) {
			return
		}
		if job.ID == 0 {
			resp.Status = APIERR
			resp.Error = APINoJob
			s.JSONResponse(w, resp)
			return
		}
		resp.Status = APIOK
		resp.Job = job
		s.JSONResponse(w, resp)
	})

	// All per-machine rows.
	api.HandleFunc("/backup-vms", func(w http.ResponseWriter, r *http.Request) {
		var vms []BackupVM
		if s.dbError(w, app.db.Order("id desc").Find(&vms).Error) {
			return
		}
		resp := APIVMListResp{}
		resp.Status = APIOK
		resp.VMs = vms
		s.JSONResponse(w, resp)
	})

	// Per-machine rows of one job.
	api.HandleFunc("/backup-vms/by-job/{id:[0-9]+}", func(w http.ResponseWriter, r *http.Request) {
		var vms []BackupVM
		if s.dbError(w, app.db.Where("job_id = ?", muxID(r)).Find(&vms).Error) {
			return
		}
		resp := APIVMListResp{}
		resp.Status = APIOK
		resp.VMs = vms
		s.JSONResponse(w, resp)
	})

	// All configuration backups, newest first.
	api.HandleFunc("/config-backups", func(w http.ResponseWriter, r *http.Request) {
		var backups []ConfigBackup
		if s.dbError(w, app.db.Order("id desc").Find(&backups).Error) {
			return
		}
		resp := APIConfigBackupListResp{}
		resp.Status = APIOK
		resp.ConfigBackups = backups
		s.JSONResponse(w, resp)
	})

	// Configuration backups of one email.
	api.HandleFunc("/config-backups/by-email/{id}", func(w http.ResponseWriter, r *http.Request) {
		var backups []ConfigBackup
		if s.dbError(w, app.db.Where("email_uuid = ?", mux.Vars(r)["id"]).Find(&backups).Error) {
			return
		}
		resp := APIConfigBackupListResp{}
		resp.Status = APIOK
		resp.ConfigBackups = backups
		s.JSONResponse(w, resp)
	})

	// Pull a single configuration backup.
	api.HandleFunc("/config-backup/{id:[0-9]+}", func(w http.ResponseWriter, r *http.Request) {
		resp := APIConfigBackupResp{}
		var backup ConfigBackup
		if s.dbError(w, app.db.Where("id = ?", muxID(r)).First(&backup).Error) {
			return
		}
		if backup.ID == 0 {
			resp.Status = APIERR
			resp.Error = APINoConfigBackup
			s.JSONResponse(w, resp)
			return
		}
		resp.Status = APIOK
		resp.ConfigBackup = backup
		s.JSONResponse(w, resp)
	})

	// All catalog rows.
	api.HandleFunc("/config-catalogs", func(w http.ResponseWriter, r *http.Request) {
		var catalogs []ConfigCatalog
		if s.dbError(w, app.db.Order("id desc").Find(&catalogs).Error) {
			return
		}
		resp := APICatalogListResp{}
		resp.Status = APIOK
		resp.Catalogs = catalogs
		s.JSONResponse(w, resp)
	})

	// Catalog rows of one configuration backup.
	api.HandleFunc("/config-catalogs/by-config/{id:[0-9]+}", func(w http.ResponseWriter, r *http.Request) {
		var catalogs []ConfigCatalog
		if s.dbError(w, app.db.Where("config_backup_id = ?", muxID(r)).Find(&catalogs).Error) {
			return
		}
		resp := APICatalogListResp{}
		resp.Status = APIOK
		resp.Catalogs = catalogs
		s.JSONResponse(w, resp)
	})

	// If nothing else, we return a not found response.
	api.PathPrefix("/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.APISendGeneralResp(w, APIERR, APINoEndpoint)
	})
}
