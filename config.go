package main

import (
	"fmt"
	"log"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/jinzhu/configor"
	"github.com/urfave/cli"
)

// Configuration Structure.
type Config struct {
	// Mailbox holding the Veeam report emails.
	IMAPServer   string `json:"imap_server"`
	IMAPPort     uint   `default:"993" json:"imap_port"`
	IMAPEmail    string `json:"imap_email"`
	IMAPPassword string `json:"imap_password"`
	IMAPMailbox  string `default:"INBOX" json:"imap_mailbox"`

	// Only emails from this sender are ingested.
	TargetSender string `json:"target_sender"`

	// Seconds between ingestion runs. Default is one hour.
	PollInterval time.Duration `default:"3600" json:"poll_interval"`

	HTTPBindAddr string `default:"" json:"http_bind_addr"`
	HTTPPort     uint   `default:"80" json:"http_port"`
	HTTPDebug    bool   `default:"false" json:"http_debug"`

	// Optional SMTP intake. When enabled, report emails can be delivered
	//  directly to this process instead of (or besides) being polled over
	//  IMAP. Both paths share the same dedup keys, so receiving an email
	//  twice over different transports stores it once.
	SMTPEnabled    bool   `default:"false" json:"smtp_enabled"`
	SMTPBindAddr   string `default:"" json:"smtp_bind_addr"`
	SMTPPort       uint   `default:"25" json:"smtp_port"`
	SMTPDomain     string `default:"localhost" json:"smtp_domain"`
	MaxMessageSize int    `default:"5242880" json:"max_message_size"` // Default of 5 MB

	// Optional syslog intake. Veeam servers can forward session events via
	//  syslog, each forwarded line is scanned with the legacy host/status
	//  pattern and stored alongside the email extracted rows.
	SysLogEnabled  bool   `default:"false" json:"syslog_enabled"`
	SysLogBindAddr string `default:"" json:"syslog_bind_addr"`
	SysLogPort     uint   `default:"514" json:"syslog_port"`
	SysLogUDP      bool   `default:"true" json:"syslog_udp"`
	SysLogTCP      bool   `default:"false" json:"syslog_tcp"`

	StaticContentPath string `default:"./www/" json:"static_content_path"`

	DBType       string `default:"sqlite3" json:"database_type"` // Review documentation at http://gorm.io/docs/connecting_to_the_database.html
	DBConnection string `default:"VeeamMonitor.db" json:"database_connection"`
	DBDebug      bool   `default:"false" json:"database_debug"`

	UICustomBrand string `default:"Veeam Monitor" json:"ui_custom_brand"`
}

// Load the configuration.
func initConfig(c *cli.Context) Config {
	usr, err := user.Current()
	if err != nil {
		log.Fatal(err)
	}

	// Configuration paths.
	localConfig, _ := filepath.Abs("./config.json")
	homeDirConfig := usr.HomeDir + "/.config/veeam-monitor/config.json"
	etcConfig := "/etc/veeam-monitor/config.json"

	// Determine which configuration to use.
	var configFile string
	if _, err := os.Stat(c.String("config")); err == nil {
		configFile = c.String("config")
	} else if _, err := os.Stat(localConfig); err == nil {
		configFile = localConfig
	} else if _, err := os.Stat(homeDirConfig); err == nil {
		configFile = homeDirConfig
	} else if _, err := os.Stat(etcConfig); err == nil {
		configFile = etcConfig
	} else {
		log.Fatal("Unable to find a configuration file.")
	}

	// Load the configuration file.
	config := Config{}
	err = configor.Load(&config, configFile)
	if config.HTTPPort == 0 {
		fmt.Println(err)
		log.Fatal("Unable to load the configuration file.")
	}
	return config
}
