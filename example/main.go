// Command example runs a small muxwire server and client on a loopback
// TCP socket. The server listens on two classes: class 1 carries chat
// text, class 2 carries JSON control messages. One connection, two
// independent message streams.
package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/osklikar/muxwire"
)

func serve(ctx context.Context, server *muxwire.Server) error {
	return server.Serve(ctx, muxwire.HandlerFunc(func(sock net.Conn) {
		conn, err := muxwire.NewConn(sock)
		if err != nil {
			slog.Error("wrap connection", "error", err)
			return
		}

		// Chat text: log and echo it back.
		_ = conn.Subscribe(1, func(m *muxwire.Message) error {
			slog.Info("chat", "text", string(m.Payload))
			return conn.Send(1, muxwire.TagString, m.Payload)
		})

		// Control: decode JSON and acknowledge.
		_ = conn.Subscribe(2, func(m *muxwire.Message) error {
			v, err := conn.Registry().Decode(m)
			if err != nil {
				return err
			}
			slog.Info("control", "msg", v)
			return conn.SendValue(2, muxwire.TagJSON, map[string]any{"ok": true})
		})

		_ = conn.Run(ctx)
	}))
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, err := muxwire.NewServer("tcp", "127.0.0.1:9876")
	if err != nil {
		slog.Error("listen", "error", err)
		os.Exit(1)
	}

	go func() {
		client, err := muxwire.Dial("tcp", "127.0.0.1:9876")
		if err != nil {
			slog.Error("dial", "error", err)
			return
		}
		defer client.Close()

		replies := make(chan *muxwire.Message, 2)
		_ = client.Subscribe(1, func(m *muxwire.Message) error { replies <- m; return nil })
		_ = client.Subscribe(2, func(m *muxwire.Message) error { replies <- m; return nil })
		go func() { _ = client.Run(ctx) }()

		_ = client.Send(1, muxwire.TagString, []byte("hello over class 1"))
		_ = client.SendValue(2, muxwire.TagJSON, map[string]any{"op": "status"})

		for i := 0; i < 2; i++ {
			m := <-replies
			slog.Info("reply", "class", m.ClassID, "tag", m.Tag.String(), "len", len(m.Payload))
		}
		stop()
	}()

	if err := serve(ctx, server); err != nil && err != context.Canceled {
		slog.Error("serve", "error", err)
		os.Exit(1)
	}
}
