// Command echo-server runs the S1 echo scenario (spec.md §8) over TCP or
// KCP, with the frame codec always installed and the compress/crypt codecs
// wired in when the matching flags are set, the same flag-driven assembly shape as the teacher's own
// server/main.go.
package main

import (
	"os"

	"github.com/urfave/cli/v2"

	"github.com/xtaci/eventloop/bootstrap"
	"github.com/xtaci/eventloop/channel"
	"github.com/xtaci/eventloop/codec/compress"
	"github.com/xtaci/eventloop/codec/crypt"
	"github.com/xtaci/eventloop/codec/frame"
	"github.com/xtaci/eventloop/eventloop"
	"github.com/xtaci/eventloop/handler/idle"
	"github.com/xtaci/eventloop/internal/xlog"
	"github.com/xtaci/eventloop/transport/kcp"
	"github.com/xtaci/eventloop/transport/tcp"
)

// VERSION is injected by build flags, matching the teacher's own
// SELFBUILD convention.
var VERSION = "SELFBUILD"

func main() {
	app := cli.NewApp()
	app.Name = "echo-server"
	app.Usage = "eventloop echo server (S1)"
	app.Version = VERSION
	app.Flags = []cli.Flag{
		&cli.StringFlag{Name: "listen", Value: ":12948", Usage: "local listen address"},
		&cli.StringFlag{Name: "transport", Value: "tcp", Usage: "tcp, kcp"},
		&cli.StringFlag{Name: "key", Value: "", Usage: "pre-shared secret; empty disables the crypt codec"},
		&cli.StringFlag{Name: "crypt", Value: "salsa20", Usage: "salsa20, blowfish"},
		&cli.BoolFlag{Name: "compress", Usage: "enable the snappy compress codec"},
		&cli.IntFlag{Name: "workers", Value: 0, Usage: "worker group size, 0 = GOMAXPROCS"},
		&cli.DurationFlag{Name: "idle", Value: 0, Usage: "reader idle timeout, 0 disables"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		xlog.Errorf("echo-server: %v", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	boss := eventloop.NewGroup("boss", 1)
	worker := eventloop.NewGroup("worker", c.Int("workers"))

	var factory bootstrap.ChannelFactory
	var local channel.Address
	switch c.String("transport") {
	case "kcp":
		factory = kcp.ServerChannelFactory
		local = kcp.Addr(c.String("listen"))
	default:
		factory = tcp.ServerChannelFactory
		local = tcp.Addr(c.String("listen"))
	}

	sb := bootstrap.NewServerBootstrap(boss, worker, factory)
	sb.ChildHandler(func(p *channel.Pipeline) {
		_ = p.AddLast("frame-decoder", frame.NewDecoder())
		_ = p.AddLast("frame-encoder", frame.NewEncoder())
		if c.Bool("compress") {
			_ = p.AddLast("compress-decoder", compress.NewDecoder())
			_ = p.AddLast("compress-encoder", compress.NewEncoder())
		}
		if key := c.String("key"); key != "" {
			method := crypt.Method(c.String("crypt"))
			derived := crypt.DeriveKey(method, key, 4096)
			dec, err := crypt.NewDecoder(method, derived)
			if err != nil {
				xlog.Errorf("echo-server: crypt decoder: %v", err)
			} else {
				_ = p.AddLast("crypt-decoder", dec)
			}
			enc, err := crypt.NewEncoder(method, derived)
			if err != nil {
				xlog.Errorf("echo-server: crypt encoder: %v", err)
			} else {
				_ = p.AddLast("crypt-encoder", enc)
			}
		}
		if d := c.Duration("idle"); d > 0 {
			_ = p.AddLast("idle", &idle.Handler{ReaderIdleTimeout: d})
		}
		_ = p.AddLast("echo", &echoHandler{})
	})

	_, bindFuture := sb.Bind(local)
	if err := bindFuture.Await(); err != nil {
		return err
	}
	xlog.Printf("echo-server: listening on %s (%s)", local.String(), c.String("transport"))

	select {}
}

// echoHandler writes every inbound message straight back out, the literal
// S1 scenario spec.md §8 describes.
type echoHandler struct {
	channel.HandlerBase
}

func (h *echoHandler) ChannelRead(ctx channel.Context, msg interface{}) {
	ctx.WriteAndFlush(msg)
}

func (h *echoHandler) ExceptionCaught(ctx channel.Context, cause error) {
	xlog.Errorf("echo-server: connection %s: %v", ctx.Channel().ID(), cause)
	_ = ctx.Channel().Close()
}
