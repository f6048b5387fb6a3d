// Package mslog wires every package's btclog.Logger up to a single
// rotating backend, the way lnd's own log.go wires ltndLog/srvrLog/etc.
// from one shared btclog.Backend.
package mslog

import (
	"io"
	"os"

	"github.com/btcsuite/btclog"

	"github.com/raiden-network/monitoring-service/chainadapter"
	"github.com/raiden-network/monitoring-service/eventloop"
	"github.com/raiden-network/monitoring-service/executor"
	"github.com/raiden-network/monitoring-service/ingester"
	"github.com/raiden-network/monitoring-service/scheduler"
	"github.com/raiden-network/monitoring-service/statemachine"
	"github.com/raiden-network/monitoring-service/store"
)

var backendLog = btclog.NewBackend(os.Stdout)

var msdLog = backendLog.Logger("MSD")

// subsystemLoggers lists every package that takes a UseLogger callback,
// keyed by the subsystem tag it should log under.
var subsystemLoggers = map[string]func(btclog.Logger){
	"STOR": store.UseLogger,
	"CHAD": chainadapter.UseLogger,
	"INGS": ingester.UseLogger,
	"STMC": statemachine.UseLogger,
	"SCHD": scheduler.UseLogger,
	"EXEC": executor.UseLogger,
	"EVTL": eventloop.UseLogger,
}

// InitLogRotator redirects backendLog's output to w in addition to stdout,
// and wires every package's logger to its own subsystem tag. Call once at
// startup, before any other package does real work.
func InitLogRotator(w io.Writer) {
	if w != nil {
		backendLog = btclog.NewBackend(io.MultiWriter(os.Stdout, w))
		msdLog = backendLog.Logger("MSD")
	}

	for tag, use := range subsystemLoggers {
		use(backendLog.Logger(tag))
	}
}

// SetLogLevels sets the logging level for msdLog and every registered
// subsystem logger, e.g. "debug", "info", "warn".
func SetLogLevels(levelSpec string) {
	level, ok := btclog.LevelFromString(levelSpec)
	if !ok {
		level = btclog.InfoLvl
	}

	msdLog.SetLevel(level)
	for tag, use := range subsystemLoggers {
		logger := backendLog.Logger(tag)
		logger.SetLevel(level)
		use(logger)
	}
}

// Log returns the top-level MSD logger, used by cmd/msd itself.
func Log() btclog.Logger {
	return msdLog
}
