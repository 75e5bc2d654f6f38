package main

import (
	"time"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
)

// One ingested report email. The UUID is generated on first sight,
//  deduplication is done on (subject, date, sent_time) before insert.
type Email struct {
	UUID          string    `gorm:"primary_key" json:"uuid"`
	Subject       string    `json:"subject"`
	Date          string    `json:"date"`      // Calendar date the email was sent, YYYY-MM-DD.
	SentTime      string    `json:"sent_time"` // Time of day the email was sent, HH:MM:SS.
	ProcessedDate time.Time `json:"processed_date"`
	IsProcessed   bool      `json:"is_processed"`
}

// Legacy host/status extraction rows. Kept alongside the richer backup job
//  tables for backward compatibility, these rows are never deduplicated.
type EmailData struct {
	ID        int64  `gorm:"primary_key" json:"id"`
	EmailUUID string `json:"email_uuid"`
	Host      string `json:"host"`
	IP        string `json:"ip"`
	Status    string `json:"status"`
	Date      string `json:"date"`
	Source    string `json:"source"` // Either "email" or "syslog".
}

// One backup/agent-backup job section parsed out of a report email.
// All report fields are stored as extracted, the reports are free text
//  rendered with the locale of the sending server.
type BackupJob struct {
	ID                int64  `gorm:"primary_key" json:"id"`
	EmailUUID         string `json:"email_uuid"`
	JobName           string `json:"job_name"`
	CreatedBy         string `json:"created_by"`
	CreatedAt         string `json:"created_at"`
	SummarySuccess    string `json:"summary_success"`
	SummaryWarning    string `json:"summary_warning"`
	SummaryError      string `json:"summary_error"`
	StartTime         string `json:"start_time"`
	EndTime           string `json:"end_time"`
	Duration          string `json:"duration"`
	TotalSize         string `json:"total_size"`
	BackupSize        string `json:"backup_size"`
	DataRead          string `json:"data_read"`
	Dedupe            string `json:"dedupe"`
	Transferred       string `json:"transferred"`
	Compression       string `json:"compression"`
	ProcessedVMs      string `json:"processed_vms"`
	ProcessedVMsTotal string `json:"processed_vms_total"`
}

// One per-machine line from a job's details table.
type BackupVM struct {
	ID          int64  `gorm:"primary_key" json:"id"`
	JobID       int64  `json:"job_id"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Size        string `json:"size"`
	DataRead    string `json:"data_read"`
	Transferred string `json:"transferred"`
	Duration    string `json:"duration"`
	Details     string `json:"details"`
}

// One configuration backup report. At most one per email, a configuration
//  backup email never contains job sections.
type ConfigBackup struct {
	ID                int64  `gorm:"primary_key" json:"id"`
	EmailUUID         string `json:"email_uuid"`
	Server            string `json:"server"`
	Repository        string `json:"repository"`
	Status            string `json:"status"`
	CatalogsProcessed int    `json:"catalogs_processed"`
	BackupDate        string `json:"backup_date"`
	StartTime         string `json:"start_time"`
	EndTime           string `json:"end_time"`
	DataSize          string `json:"data_size"`
	BackupSize        string `json:"backup_size"`
	Duration          string `json:"duration"`
	Compression       string `json:"compression"`
	Warnings          string `json:"warnings"`
}

// One line from a configuration backup's catalog table.
type ConfigCatalog struct {
	ID             int64  `gorm:"primary_key" json:"id"`
	ConfigBackupID int64  `json:"config_backup_id"`
	Name           string `json:"name"`
	Items          string `json:"items"`
	Size           string `json:"size"`
	Packed         string `json:"packed"`
}

// Configure the database and add tables/adjust tables to match structures above.
func initDB(db *gorm.DB) {
	db.LogMode(app.config.DBDebug)
	db.AutoMigrate(&Email{})
	db.AutoMigrate(&EmailData{})
	db.AutoMigrate(&BackupJob{})
	db.AutoMigrate(&BackupVM{})
	db.AutoMigrate(&ConfigBackup{})
	db.AutoMigrate(&ConfigCatalog{})
}
