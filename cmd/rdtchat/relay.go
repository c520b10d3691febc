package main

import (
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Pablu23/rdtrelay/internal/relay"
)

var (
	relayListen      string
	relayPort        int
	relayIdleTimeout time.Duration
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run a local relay server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		server := relay.New(func(o *relay.Options) {
			o.Address = cfg.Relay.Listen
			o.Port = cfg.Relay.Port
			o.IdleTimeout = cfg.Relay.IdleTimeout
			o.BufferSize = cfg.BufferSize
			if flags.Changed("listen") {
				o.Address = relayListen
			}
			if flags.Changed("listen-port") {
				o.Port = relayPort
			}
			if flags.Changed("idle-timeout") {
				o.IdleTimeout = relayIdleTimeout
			}
		})

		if err := server.Listen(); err != nil {
			return err
		}

		go func() {
			<-cmd.Context().Done()
			log.Info("Shutting down relay")
			server.Close()
		}()

		return server.Serve()
	},
}

func init() {
	relayCmd.Flags().StringVar(&relayListen, "listen", "", "address to listen on (default \"0.0.0.0\")")
	relayCmd.Flags().IntVar(&relayPort, "listen-port", 0, "port to listen on (default 8888)")
	relayCmd.Flags().DurationVar(&relayIdleTimeout, "idle-timeout", 0, "forget clients silent this long, 0 never does")
	rootCmd.AddCommand(relayCmd)
}
