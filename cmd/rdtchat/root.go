package main

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Pablu23/rdtrelay/internal/common"
	"github.com/Pablu23/rdtrelay/internal/config"
	"github.com/Pablu23/rdtrelay/internal/rdt"
)

var (
	cfgFile string
	verbose bool

	server     string
	port       int
	timeout    time.Duration
	maxRetries int
	bufferSize int
	checksum   string

	// set during PersistentPreRunE
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "rdtchat",
	Short: "Reliable file and chat transfer over a UDP relay",
	Long: `rdtchat moves a file, or lines typed on stdin, from a sender to a receiver
through a UDP relay server, using a stop-and-wait protocol with a one bit
sequence number and a 16 byte checksum per packet.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		log.SetFormatter(&log.TextFormatter{ForceColors: true})
		if verbose {
			log.SetLevel(log.DebugLevel)
		}

		path := cfgFile
		if path == "" {
			path = config.DefaultPath()
		}
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		flags := cmd.Flags()
		if flags.Changed("server") {
			cfg.Server = server
		}
		if flags.Changed("port") {
			cfg.Port = port
		}
		if flags.Changed("timeout") {
			cfg.Timeout = timeout
		}
		if flags.Changed("max-retries") {
			cfg.MaxRetries = maxRetries
		}
		if flags.Changed("buffer-size") {
			cfg.BufferSize = bufferSize
		}
		if flags.Changed("checksum") {
			cfg.Checksum = checksum
		}
		return cfg.Validate()
	},
}

// dial opens the channel to the configured relay.
func dial() (*rdt.Channel, error) {
	sum, err := common.ParseChecksum(cfg.Checksum)
	if err != nil {
		return nil, err
	}

	ch, err := rdt.Dial(cfg.Server, cfg.Port,
		rdt.WithTimeout(cfg.Timeout),
		rdt.WithMaxRetries(cfg.MaxRetries),
		rdt.WithBufferSize(cfg.BufferSize),
		rdt.WithChecksum(sum),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to reach relay %s:%d: %w", cfg.Server, cfg.Port, err)
	}

	log.WithFields(log.Fields{
		"Relay": ch.Peer(),
		"Local": ch.LocalAddr(),
	}).Info("Opened channel")
	return ch, nil
}

func logStats(ch *rdt.Channel, elapsed time.Duration) {
	stats := ch.Stats()
	log.WithFields(log.Fields{
		"Elapsed":         elapsed.Round(time.Millisecond),
		"Sent":            stats.Sent,
		"Delivered":       stats.Delivered,
		"Transmissions":   stats.Transmissions,
		"Retransmissions": stats.Retransmissions,
		"Timeouts":        stats.Timeouts,
		"Naks":            stats.Naks,
		"Duplicates":      stats.Duplicates,
		"Corrupted":       stats.Corrupted,
	}).Info("Channel statistics")

	if retransmitted := ch.RetransmittedMessages(); len(retransmitted) > 0 {
		log.WithField("Messages", retransmitted).Debug("Messages that needed retransmission")
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ~/.rdtchat/config.yaml)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "log every datagram")
	flags.StringVarP(&server, "server", "s", "", "relay server host")
	flags.IntVarP(&port, "port", "p", 0, "relay server port")
	flags.DurationVar(&timeout, "timeout", 0, "wait for a reply this long before retransmitting")
	flags.IntVar(&maxRetries, "max-retries", 0, "give up on a message after this many retransmissions, 0 never gives up")
	flags.IntVar(&bufferSize, "buffer-size", 0, "datagram buffer size in bytes")
	flags.StringVar(&checksum, "checksum", "", "packet checksum: md5 or blake2b")
}
