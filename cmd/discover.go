package cmd

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/DrUlysses/Kristine-sub000/core/discovery"
	"github.com/DrUlysses/Kristine-sub000/model"

	"github.com/spf13/cobra"
)

var discoverDuration time.Duration

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Listen for servers on the local network and print them",
	RunE: func(cmd *cobra.Command, args []string) error {
		listener := discovery.NewListener(discovery.NewRegistry(), discovery.ListenerOptions{
			Port:          cfg.Discovery.Port,
			SweepInterval: cfg.Discovery.SweepInterval,
			PeerTimeout:   cfg.Discovery.PeerTimeout,
			MDNS:          cfg.Discovery.MDNS,
		})

		var (
			mu   sync.Mutex
			last string
		)
		err := listener.StartDiscovery(func(servers model.ServerSet) {
			line := formatServers(servers)
			mu.Lock()
			defer mu.Unlock()
			if line != last {
				last = line
				fmt.Printf("%s  %s\n", time.Now().Format("15:04:05"), line)
			}
		})
		if err != nil {
			return err
		}
		defer listener.StopDiscovery()

		fmt.Printf("Listening for beacons on UDP %d...\n", cfg.Discovery.Port)
		if discoverDuration > 0 {
			time.Sleep(discoverDuration)
			return nil
		}
		waitForSignal()
		return nil
	},
}

func formatServers(servers model.ServerSet) string {
	if len(servers) == 0 {
		return "no servers"
	}
	entries := make([]string, 0, len(servers))
	for addr, port := range servers {
		entries = append(entries, fmt.Sprintf("%s:%d", addr, port))
	}
	sort.Strings(entries)
	return strings.Join(entries, " ")
}

func init() {
	discoverCmd.Flags().DurationVarP(&discoverDuration, "duration", "d", 0, "stop after this long (0 waits for a signal)")
	rootCmd.AddCommand(discoverCmd)
}
