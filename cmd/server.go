package cmd

import (
	"fmt"

	"github.com/DrUlysses/Kristine-sub000/core/network"
	"github.com/DrUlysses/Kristine-sub000/core/player"
	"github.com/DrUlysses/Kristine-sub000/logger"

	"github.com/spf13/cobra"
)

var (
	servePort        int
	serveHidden      bool
	serveConnectAddr string
	serveConnectPort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a playback server other instances can discover and control",
	Long: `Start the local player, the session server on /player and, unless
--hidden is given, the discovery beacon that advertises it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("port") {
			cfg.Server.Port = servePort
		}
		if serveHidden {
			cfg.Server.Discoverable = false
		}

		songs, closeCatalog, err := openCatalog(cfg.Catalog, true)
		if err != nil {
			return fmt.Errorf("open catalog: %w", err)
		}
		defer closeCatalog()

		m := network.NewManager(network.Options{
			Discovery: cfg.Discovery,
			Server:    cfg.Server,
			Engine:    player.NewLogEngine(),
			Catalog:   songs,
		})
		defer m.Close()

		port, addrs, err := m.StartServer()
		if err != nil {
			return err
		}
		fmt.Printf("Serving on port %d\n", port)
		for _, a := range addrs {
			fmt.Printf("  ws://%s:%d/player\n", a, port)
		}

		if serveConnectAddr != "" {
			m.ConnectToServer(serveConnectAddr, serveConnectPort, func(connected bool) {
				logger.Info("upstream connection changed", logger.Bool("connected", connected))
			})
		}

		waitForSignal()
		fmt.Println("Shutting down...")
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "session server port (0 picks one)")
	serveCmd.Flags().BoolVar(&serveHidden, "hidden", false, "do not broadcast discovery beacons")
	serveCmd.Flags().StringVar(&serveConnectAddr, "follow", "", "also follow the server at this address")
	serveCmd.Flags().IntVar(&serveConnectPort, "follow-port", 0, "port of the server given by --follow")
	rootCmd.AddCommand(serveCmd)
}
