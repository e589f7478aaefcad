package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/flowline/pkg/actions/httprequest"
	logaction "github.com/dukex/flowline/pkg/actions/log"
	"github.com/dukex/flowline/pkg/actions/mqttpublish"
	"github.com/dukex/flowline/pkg/actions/redispublish"
	"github.com/dukex/flowline/pkg/config"
	"github.com/dukex/flowline/pkg/registry"
)

func registerNativeActions(reg *registry.Registry, logger *slog.Logger, client *httprequest.Client) {
	reg.Register(logaction.NewAction(logger))
	reg.Register(httprequest.NewAction(client))
}

// NewRegistry registers the built-in actions, the broker actions whose
// connection is configured, and the plugins under pluginsPath. The returned
// cleanup closes the broker connections.
func NewRegistry(ctx context.Context, logger *slog.Logger, cfg *config.Config, client *httprequest.Client) (*registry.Registry, func(), error) {
	reg := registry.NewRegistry(logger)

	registerNativeActions(reg, logger, client)

	var closers []func()

	cleanup := func() {
		for _, closeFn := range closers {
			closeFn()
		}
	}

	if cfg.Redis.Addr != "" {
		redisClient, err := redispublish.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, func() {}, err
		}

		closers = append(closers, func() { _ = redisClient.Close() })
		reg.Register(redispublish.NewAction(redisClient, logger))
	}

	if cfg.MQTT.Broker != "" {
		mqttClient, err := mqttpublish.Connect(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.Username, cfg.MQTT.Password)
		if err != nil {
			cleanup()

			return nil, func() {}, err
		}

		closers = append(closers, func() { mqttClient.Disconnect(250) })
		reg.Register(mqttpublish.NewAction(mqttClient, logger))
	}

	if cfg.PluginsPath != "" {
		err := reg.LoadPlugins(cfg.PluginsPath)
		if err != nil {
			cleanup()

			return nil, func() {}, fmt.Errorf("failed to load action plugins: %w", err)
		}
	}

	return reg, cleanup, nil
}
