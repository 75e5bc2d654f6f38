package main

import (
	"fmt"
	"log"
	"time"

	"gopkg.in/mcuadros/go-syslog.v2"
)

// Reads forwarded syslog messages and scans each for host/status lines.
// Veeam servers can forward session events here, matching lines land in the
//  same table as the legacy email extraction with their own source tag.
func SysLogRunner(channel syslog.LogPartsChannel) {
	for logParts := range channel {
		content, ok := logParts["content"].(string)
		if !ok {
			// RFC 5424 messages carry the text in the message field instead.
			content, _ = logParts["message"].(string)
		}
		if content == "" {
			continue
		}

		for _, row := range ExtractHostStatus(content) {
			data := EmailData{
				Host:   row.Host,
				IP:     row.IP,
				Status: row.Status,
				Date:   time.Now().Format("2006-01-02"),
				Source: "syslog",
			}
			if err := app.db.Create(&data).Error; err != nil {
				log.Printf("Syslog: Unable to store host row %q: %v", row.Host, err)
				continue
			}
			log.Println("Syslog:", row.Host, row.Status)
		}
	}
}

// This function starts the syslog server.
func SysLogServe() {
	// If syslog is not enabled, stop here.
	if !app.config.SysLogUDP && !app.config.SysLogTCP {
		return
	}

	// Get the configuration.
	sysLogBindAddr := app.config.SysLogBindAddr
	sysLogPort := app.config.SysLogPort

	// Create the syslog server and message channel.
	channel := make(syslog.LogPartsChannel)
	handler := syslog.NewChannelHandler(channel)
	server := syslog.NewServer()
	app.sysLogServer = server

	// Configure the syslog server.
	server.SetFormat(syslog.RFC3164)
	server.SetHandler(handler)
	if app.config.SysLogUDP {
		server.ListenUDP(fmt.Sprintf("%s:%d", sysLogBindAddr, sysLogPort))
	}
	if app.config.SysLogTCP {
		server.ListenTCP(fmt.Sprintf("%s:%d", sysLogBindAddr, sysLogPort))
	}

	// Start the syslog server.
	log.Println("Starting system log server on port", sysLogPort)
	server.Boot()

	// Start the message channel reader.
	go SysLogRunner(channel)

	// Wait until the syslog server stops.
	server.Wait()
}
