package main

import (
	"log"
	"os"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/mysql"
	_ "github.com/jinzhu/gorm/dialects/postgres"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
	"github.com/urfave/cli"
	"gopkg.in/mcuadros/go-syslog.v2"
)

// Global application structure for communicating between servers and storing information.
type App struct {
	context      *cli.Context
	config       Config
	db           *gorm.DB
	pipeline     *Pipeline
	httpServer   *HTTPServer
	smtpServer   *smtp.Server
	sysLogServer *syslog.Server
	emailCount   uint
}

var app *App

// Main start of the application.
func appInit(c *cli.Context) {
	app = new(App)
	app.context = c
	app.config = initConfig(c)

	// Flag overrides for the mailbox settings.
	if c.String("imap-server") != "" {
		app.config.IMAPServer = c.String("imap-server")
	}
	if c.String("target-sender") != "" {
		app.config.TargetSender = c.String("target-sender")
	}
	if c.Uint("poll-interval") != 0 {
		app.config.PollInterval = time.Duration(c.Uint("poll-interval"))
	}

	// Connect to the database.
	db, err := gorm.Open(app.config.DBType, app.config.DBConnection)
	if err != nil {
		log.Fatal(err)
	}
	initDB(db)
	app.db = db

	// Get email count.
	db.Model(&Email{}).Count(&app.emailCount)

	// Setup the ingestion pipeline with the IMAP message source.
	app.pipeline = NewPipeline(db, NewIMAPSource(app.config))
	app.pipeline.notify = func(msgType string, msg interface{}) {
		if msgType == "emailProcessed" {
			app.emailCount++
		}
		// Notify websocket subscribers, the server may not be up yet on the
		//  first run after start.
		if app.httpServer != nil {
			app.httpServer.ws.sendMessage(msgType, msg)
			app.httpServer.ws.sendMessage("updateEmailCount", app.emailCount)
		}
	}

	// Start polling for report emails.
	go RunPoller(app.pipeline, app.config.PollInterval*time.Second)

	// Start the optional intake servers.
	if app.config.SMTPEnabled {
		go SMTPServe()
	}
	if app.config.SysLogEnabled {
		go SysLogServe()
	}
	HTTPServe()
}

func main() {
	capp := cli.NewApp()
	capp.Name = "veeam-monitor"
	capp.Usage = "Veeam backup report email monitor with database storage and web interface."
	capp.EnableBashCompletion = true
	capp.Version = "0.1"
	capp.Action = appInit // By default, we start the initialize function.

	capp.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "Load configuration from `FILE`",
		},
		cli.StringFlag{Name: "http-bind"},
		cli.UintFlag{Name: "http-port"},
		cli.StringFlag{Name: "imap-server"},
		cli.StringFlag{Name: "target-sender"},
		cli.UintFlag{Name: "poll-interval"},
	}

	err := capp.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}
