package main

import (
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Pablu23/rdtrelay/internal/session"
)

var (
	receiveName   string
	receiveDir    string
	receiveLinger time.Duration
)

var receiveCmd = &cobra.Command{
	Use:   "receive",
	Short: "Wait for a sender and write what it sends",
	Long: `Receive registers on the relay and waits for a sender's metadata. Named
files are created below --dir, "stdout" streams to the terminal.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ch, err := dial()
		if err != nil {
			return err
		}
		defer ch.Close()

		receiver := session.NewReceiver(ch, log.StandardLogger(), func(o *session.ReceiverOptions) {
			o.Name = pick(receiveName, cfg.Name, o.Name)
			if receiveDir != "" {
				o.Dir = receiveDir
			}
			o.Linger = cfg.Linger
			if cmd.Flags().Changed("linger") {
				o.Linger = receiveLinger
			}
		})

		start := time.Now()
		err = receiver.Run()
		logStats(ch, time.Since(start))
		return err
	},
}

func init() {
	receiveCmd.Flags().StringVarP(&receiveName, "name", "n", "", "name to register on the relay (default \"receiver\")")
	receiveCmd.Flags().StringVarP(&receiveDir, "dir", "d", "", "directory for received files (default \".\")")
	receiveCmd.Flags().DurationVar(&receiveLinger, "linger", 0, "keep acknowledging a retransmitted end of file this long")
	rootCmd.AddCommand(receiveCmd)
}
