package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"wsrooms/pkg/protocol"
	"wsrooms/pkg/websocket"
)

type probeFlags struct {
	addr  string
	path  string
	join  bool
	all   string
	count int
}

func newProbeCmd() *cobra.Command {
	var f probeFlags

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Connect to a server and print the envelopes it sends",
		Long: `probe connects to a wsrooms server, joins a room, optionally sends an
ALL_MESSAGE, and prints every envelope received until interrupted or until
--count envelopes were printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runProbe(ctx, f, cmd.OutOrStdout())
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.addr, "addr", "127.0.0.1:3000", "server address")
	fl.StringVar(&f.path, "path", "/", "request path for the upgrade")
	fl.BoolVar(&f.join, "join", true, "send JOIN_ROOM after connecting")
	fl.StringVar(&f.all, "all", "", "send this text to every client as ALL_MESSAGE")
	fl.IntVar(&f.count, "count", 0, "exit after this many envelopes (0 = until interrupted)")

	return cmd
}

func runProbe(ctx context.Context, f probeFlags, out io.Writer) error {
	cc, err := websocket.Dial(ctx, f.addr, f.path)
	if err != nil {
		return fmt.Errorf("dial %s: %w", f.addr, err)
	}
	defer cc.Close()

	go func() {
		<-ctx.Done()
		cc.Close()
	}()

	if f.join {
		if err := sendEnvelope(cc, protocol.JoinRoom{}); err != nil {
			return err
		}
	}
	if f.all != "" {
		msg, err := json.Marshal(f.all)
		if err != nil {
			return err
		}
		if err := sendEnvelope(cc, protocol.AllMessage{Msg: msg}); err != nil {
			return err
		}
	}

	for n := 0; f.count == 0 || n < f.count; n++ {
		frame, err := cc.ReadFrame()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		if frame.Opcode == websocket.OpcodeClose {
			return nil
		}
		fmt.Fprintf(out, "%s\n", frame.Payload)
	}
	return nil
}

func sendEnvelope(cc *websocket.ClientConn, msg protocol.Message) error {
	payload, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	if err := cc.WriteText(payload); err != nil {
		return fmt.Errorf("send %s: %w", msg.MessageType(), err)
	}
	return nil
}
