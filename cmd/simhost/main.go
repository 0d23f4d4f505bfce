// Command simhost is an acquirer simulator. It answers every request on
// the TPDU + ISO-8583 wire format used by the terminal, approving
// everything, so the host switch can be exercised without a real host.
package main

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"go-pos-hostswitch/internal/logger"
)

var opts struct {
	listen    string
	protocol  string
	reconcile bool
	verbose   bool
}

var rootCmd = &cobra.Command{
	Use:          "simhost",
	Short:        "Acquirer host simulator",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		level := "info"
		if opts.verbose {
			level = "debug"
		}
		log := logger.New(logger.Config{Level: level, Pretty: true})

		acq, err := newAcquirer(opts.protocol, opts.reconcile, log)
		if err != nil {
			return err
		}
		ln, err := net.Listen("tcp", opts.listen)
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		log.Info().Str("addr", opts.listen).Str("protocol", opts.protocol).Msg("simhost listening")
		for {
			c, err := ln.Accept()
			if err != nil {
				log.Error().Err(err).Msg("accept")
				continue
			}
			go handle(c, acq, log)
		}
	},
}

func main() {
	rootCmd.Flags().StringVar(&opts.listen, "listen", ":5001", "listen address")
	rootCmd.Flags().StringVar(&opts.protocol, "protocol", "diners", "message dialect: diners, fdms or amex")
	rootCmd.Flags().BoolVar(&opts.reconcile, "reconcile", false, "answer 95 to settlements sent before a batch upload")
	rootCmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "dump every message")
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func handle(conn net.Conn, acq *acquirer, log zerolog.Logger) {
	defer conn.Close()
	log = log.With().Str("client", conn.RemoteAddr().String()).Logger()
	log.Info().Msg("client connected")
	reader := bufio.NewReader(conn)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		mli := make([]byte, 2)
		if _, err := io.ReadFull(reader, mli); err != nil {
			if !errors.Is(err, io.EOF) {
				log.Warn().Err(err).Msg("read mli")
			}
			return
		}
		frame := make([]byte, binary.BigEndian.Uint16(mli))
		if _, err := io.ReadFull(reader, frame); err != nil {
			log.Warn().Err(err).Msg("read frame")
			return
		}

		reply, err := acq.answer(frame)
		if err != nil {
			log.Warn().Err(err).Msg("cannot answer")
			continue
		}
		out := make([]byte, 2, 2+len(reply))
		binary.BigEndian.PutUint16(out, uint16(len(reply)))
		if _, err := conn.Write(append(out, reply...)); err != nil {
			log.Warn().Err(err).Msg("write reply")
			return
		}
	}
}
