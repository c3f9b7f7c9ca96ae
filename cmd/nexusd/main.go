// Command nexusd is the long-running nexus daemon: it exits unless the
// key-exchange state is already operational (nexus-cli init drives it
// there), then runs the fetch and submit
// orchestrators on their configured tickers alongside the Wire Gateway REST
// facade, until told to shut down.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nexus/internal/bootstrap"
	"nexus/internal/config"
	"nexus/internal/ebicsmsg"
	"nexus/internal/ebicstransport"
	"nexus/internal/fetch"
	"nexus/internal/filelog"
	"nexus/internal/keyexchange"
	"nexus/internal/nexusdb"
	"nexus/internal/submit"
	"nexus/internal/wiregateway"
)

func main() {
	procCfg := config.LoadProcess()
	config.SetupLogging(procCfg)

	if err := procCfg.Validate(); err != nil {
		slog.Error("process configuration error", "error", err)
		os.Exit(1)
	}

	nexusCfg, err := config.LoadNexusConfig(procCfg.NexusConfigPath)
	if err != nil {
		slog.Error("failed to load nexus configuration", "error", err)
		os.Exit(1)
	}
	if err := nexusCfg.Validate(); err != nil {
		slog.Error("invalid nexus configuration", "error", err)
		os.Exit(1)
	}

	store, err := bootstrap.OpenKeystore(nexusCfg)
	if err != nil {
		slog.Error("failed to open keystore", "error", err)
		os.Exit(1)
	}

	header := ebicsmsg.Header{
		HostID:    nexusCfg.HostID,
		PartnerID: nexusCfg.PartnerID,
		UserID:    nexusCfg.UserID,
		SystemID:  nexusCfg.SystemID,
		Product:   "nexus",
	}
	transport := ebicstransport.NewClient(nexusCfg.HostBaseURL, nexusCfg.HostID, nil)
	machine := keyexchange.NewMachine(store, transport, header)

	state, err := machine.Current()
	if err != nil {
		slog.Error("failed to inspect key-exchange state", "error", err)
		os.Exit(1)
	}
	if state != keyexchange.StateOperational {
		slog.Error("key exchange is not complete, run nexus-cli init first", "state", state)
		os.Exit(1)
	}

	keys, err := bootstrap.LoadTransportKeys(store)
	if err != nil {
		slog.Error("failed to load transport keys", "error", err)
		os.Exit(1)
	}

	dbCfg := &nexusdb.Config{
		Host: procCfg.Database.Host, Port: procCfg.Database.Port,
		User: procCfg.Database.User, Password: procCfg.Database.Password,
		Name: procCfg.Database.Name, SSLMode: procCfg.Database.SSLMode,
		MaxConns: procCfg.Database.MaxConns,
	}
	db, err := nexusdb.New(dbCfg)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	submitOrch := submit.NewOrchestrator(transport, header, keys, db,
		nexusCfg.Currency, nexusCfg.Account.Name, nexusCfg.Account.IBAN, nexusCfg.Account.BIC,
		submit.Options{Interval: nexusCfg.SubmitFrequency}, slog.Default())
	submitOrch.Start(ctx)
	defer submitOrch.Stop()

	go runFetchLoop(ctx, transport, header, keys, db, nexusCfg)

	gateway := wiregateway.New(procCfg, db)
	go func() {
		if err := gateway.Start(); err != nil {
			slog.Error("wire gateway server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := gateway.Shutdown(shutdownCtx); err != nil {
		slog.Error("wire gateway forced to shutdown", "error", err)
	}
	slog.Info("nexusd exited")
}

// runFetchLoop runs fetch.Orchestrator.Run on nexusCfg's fetch frequency
// until ctx is cancelled.
func runFetchLoop(ctx context.Context, transport *ebicstransport.Client, header ebicsmsg.Header, keys ebicstransport.Keys, db nexusdb.Database, nexusCfg *config.NexusConfig) {
	var dumper *filelog.Dumper
	if nexusCfg.DebugLogDir != "" {
		dumper = filelog.NewDumper(nexusCfg.DebugLogDir)
	}

	kinds := []fetch.Kind{fetch.KindNotification, fetch.KindStatus, fetch.KindAcknowledgement}
	orch := fetch.NewOrchestrator(transport, header, keys, db, nexusCfg.Currency, kinds, dumper, slog.Default())

	ticker := time.NewTicker(nexusCfg.FetchFrequency)
	defer ticker.Stop()
	for {
		if _, err := orch.Run(ctx); err != nil {
			slog.Error("fetch: tick failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
