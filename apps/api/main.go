package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"

	"github.com/jmoiron/sqlx"
	"go.uber.org/dig"

	dig_container "github.com/trezcool/labportal/apps/api/di/dig"
	echoapi "github.com/trezcool/labportal/apps/api/echo"
	"github.com/trezcool/labportal/core"
	emailsvc "github.com/trezcool/labportal/services/email"
	logsvc "github.com/trezcool/labportal/services/logger"
)

type app struct {
	dig.In

	Conf     *core.Config
	Logger   *logsvc.RollbarLogger
	DBLogger core.Logger `name:"dbLogger"`
	DB       *sqlx.DB
	Outbox   *emailsvc.Outbox
	Server   *echoapi.Server
}

func main() {
	c := dig_container.New()
	if err := c.Invoke(run); err != nil {
		log.Fatal(err)
	}
}

func run(a app) {
	conf, apiLogger, server := a.Conf, a.Logger, a.Server

	// =========================================================================
	// Initialize App

	apiLogger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))

	core.ParseEmailTemplates(conf, apiLogger)

	defer apiLogger.Close()
	defer apiLogger.Info("Application stopped")
	if a.DB != nil {
		defer func() {
			if err := a.DB.Close(); err != nil {
				a.DBLogger.Error("Failed to close", err)
			}
		}()
	}
	// drain the queued emails once the server has stopped
	defer a.Outbox.Close()

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			apiLogger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	go server.Start()

	// =========================================================================
	// Shutdown

	select {
	case err := <-server.Errors():
		apiLogger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		apiLogger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shut down and shed load
		if err := server.Shutdown(ctx); err != nil {
			apiLogger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				apiLogger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}
