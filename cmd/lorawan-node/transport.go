package main

import (
	"fmt"

	"avaneesh/lorawan-node/pkg/channel"
	"avaneesh/lorawan-node/pkg/config"
	"avaneesh/lorawan-node/pkg/node"
)

// openChannel opens the link described by t. listen overrides t.Server.
func openChannel(t config.Transport, listen bool, log node.Logger) (channel.PhysicalChannel, error) {
	switch t.Kind {
	case config.TransportTCP:
		return channel.NewTCPChannel(channel.TCPChannelConfig{
			Address:        t.Address,
			IsServer:       listen,
			ReconnectDelay: t.ReconnectDelay.Std(),
			DialTimeout:    t.DialTimeout.Std(),
			Logger:         log,
		})

	case config.TransportQUIC:
		return channel.NewQUICChannel(channel.QUICChannelConfig{
			Address:        t.Address,
			IsServer:       listen,
			ReconnectDelay: t.ReconnectDelay.Std(),
			Logger:         log,
		})

	case config.TransportSerial:
		if listen {
			return nil, fmt.Errorf("serial transport cannot listen")
		}
		return channel.NewSerialChannel(channel.SerialChannelConfig{
			Port:     t.Port,
			BaudRate: t.BaudRate,
			Logger:   log,
		})
	}
	return nil, fmt.Errorf("unknown transport %q", t.Kind)
}
