package main

import (
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Pablu23/rdtrelay/internal/session"
)

var (
	sendName string
	sendPeer string
)

var sendCmd = &cobra.Command{
	Use:   "send [source dest]",
	Short: "Send a file, or stdin line by line, to a peer on the relay",
	Long: `Send waits until the peer shows up in the relay's listing, connects to it
and sends the source. Without arguments every line read from stdin is sent
until EOF or Ctrl+C, and the peer prints it to its stdout.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 0 && len(args) != 2 {
			return cobra.ExactArgs(2)(cmd, args)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ch, err := dial()
		if err != nil {
			return err
		}
		defer ch.Close()

		sender := session.NewSender(ch, log.StandardLogger(), func(o *session.SenderOptions) {
			o.Name = pick(sendName, cfg.Name, o.Name)
			o.Peer = pick(sendPeer, cfg.Peer, o.Peer)
			o.ChunkSize = cfg.ChunkSize()
			if cfg.ListInterval > 0 {
				o.ListInterval = cfg.ListInterval
			}
			if len(args) == 2 {
				o.SourceFile = args[0]
				o.DestFile = args[1]
			}
		})

		start := time.Now()
		err = sender.Run(cmd.Context())
		logStats(ch, time.Since(start))
		return err
	},
}

// pick returns the first non empty value.
func pick(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func init() {
	sendCmd.Flags().StringVarP(&sendName, "name", "n", "", "name to register on the relay (default \"sender\")")
	sendCmd.Flags().StringVar(&sendPeer, "peer", "", "relay name of the receiver (default \"receiver\")")
	rootCmd.AddCommand(sendCmd)
}
