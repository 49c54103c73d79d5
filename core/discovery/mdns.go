package discovery

import (
	"context"
	"os"

	"github.com/DrUlysses/Kristine-sub000/logger"

	"github.com/grandcat/zeroconf"
)

const (
	mdnsService = "_kristine._tcp"
	mdnsDomain  = "local."
)

func registerMDNS(port int) (*zeroconf.Server, error) {
	instance, err := os.Hostname()
	if err != nil || instance == "" {
		instance = "kristine"
	}
	return zeroconf.Register(instance, mdnsService, mdnsDomain, port, []string{"app=kristine"}, nil)
}

// browseMDNS reports every resolved _kristine._tcp instance until ctx ends.
func browseMDNS(ctx context.Context, found func(address string, port int)) {
	resolver, err := zeroconf.NewResolver()
	if err != nil {
		logger.Warn("mdns resolver unavailable", logger.ErrorField(err))
		return
	}

	entries := make(chan *zeroconf.ServiceEntry)
	go func() {
		if err := resolver.Browse(ctx, mdnsService, mdnsDomain, entries); err != nil {
			logger.Warn("mdns browse failed", logger.ErrorField(err))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-entries:
			if !ok {
				return
			}
			if len(entry.AddrIPv4) == 0 || entry.Port <= 0 {
				continue
			}
			found(entry.AddrIPv4[0].String(), entry.Port)
		}
	}
}
