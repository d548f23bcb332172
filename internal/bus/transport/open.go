// Package transport opens the JobBus selected by REPORTQ_QUEUE_TRANSPORT.
package transport

import (
	"context"
	"fmt"

	"github.com/reportq/reportq/internal/bus"
	"github.com/reportq/reportq/internal/bus/natsbus"
	buspostgres "github.com/reportq/reportq/internal/bus/postgres"
	"github.com/reportq/reportq/internal/config"
)

// Open connects to the configured queue. clientName identifies the process
// to the broker where the transport supports it.
func Open(ctx context.Context, cfg config.QueueConfig, clientName string) (bus.JobBus, error) {
	switch cfg.Transport {
	case config.TransportPostgres:
		dbCfg := buspostgres.DBConfigFromQueue(cfg)
		dbCfg.ApplicationName = clientName
		db, err := buspostgres.Open(ctx, dbCfg)
		if err != nil {
			return nil, err
		}
		return buspostgres.NewJobBus(db), nil
	case config.TransportNATS:
		jobBus, err := natsbus.Connect(natsbus.Options{URL: cfg.NATSURL, Name: clientName})
		if err != nil {
			return nil, err
		}
		return jobBus, nil
	default:
		return nil, fmt.Errorf("unsupported queue transport %q", cfg.Transport)
	}
}
