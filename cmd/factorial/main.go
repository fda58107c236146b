// Command factorial exercises the frame codec's S2 scenario (spec.md §8)
// end to end: the server decodes a framed uint32 request, computes its
// factorial, and replies with a framed uint64 result; the client frames a
// request and prints the decoded reply.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/xtaci/eventloop/bootstrap"
	"github.com/xtaci/eventloop/channel"
	"github.com/xtaci/eventloop/codec/frame"
	"github.com/xtaci/eventloop/eventloop"
	"github.com/xtaci/eventloop/internal/xlog"
	"github.com/xtaci/eventloop/transport/tcp"
)

var VERSION = "SELFBUILD"

func main() {
	app := cli.NewApp()
	app.Name = "factorial"
	app.Usage = "frame codec demo (S2): frames a uint32 request, replies with its factorial"
	app.Version = VERSION
	app.Commands = []*cli.Command{
		{
			Name:  "serve",
			Usage: "run the factorial server",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "listen", Value: ":12949"},
			},
			Action: serve,
		},
		{
			Name:  "request",
			Usage: "request n! from a running server",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "connect", Value: "127.0.0.1:12949"},
				&cli.UintFlag{Name: "n", Value: 5},
			},
			Action: request,
		},
	}

	if err := app.Run(os.Args); err != nil {
		xlog.Errorf("factorial: %v", err)
		os.Exit(1)
	}
}

func serve(c *cli.Context) error {
	boss := eventloop.NewGroup("boss", 1)
	worker := eventloop.NewGroup("worker", 0)

	sb := bootstrap.NewServerBootstrap(boss, worker, tcp.ServerChannelFactory)
	sb.ChildHandler(func(p *channel.Pipeline) {
		_ = p.AddLast("frame-decoder", frame.NewDecoder())
		_ = p.AddLast("frame-encoder", frame.NewEncoder())
		_ = p.AddLast("factorial", &factorialHandler{})
	})

	_, bindFuture := sb.Bind(tcp.Addr(c.String("listen")))
	if err := bindFuture.Await(); err != nil {
		return err
	}
	xlog.Printf("factorial: listening on %s", c.String("listen"))
	select {}
}

// factorialHandler decodes a uint32 request (the frame payload, per S2)
// and replies with the uint64 factorial, framed the same way.
type factorialHandler struct {
	channel.HandlerBase
}

func (h *factorialHandler) ChannelRead(ctx channel.Context, msg interface{}) {
	bb := msg.(interface{ Bytes() []byte })
	defer func() {
		if r, ok := msg.(interface{ Release() bool }); ok {
			r.Release()
		}
	}()
	raw := bb.Bytes()
	if len(raw) != 4 {
		xlog.Warnf("factorial: expected a 4-byte request, got %d bytes", len(raw))
		return
	}
	n := uint32(raw[0])<<24 | uint32(raw[1])<<16 | uint32(raw[2])<<8 | uint32(raw[3])

	result := factorial(uint64(n))
	resp := ctx.Allocator().Buffer(8, 8)
	if err := resp.WriteUint64(result); err != nil {
		xlog.Errorf("factorial: encode reply: %v", err)
		return
	}
	ctx.WriteAndFlush(resp)
}

func factorial(n uint64) uint64 {
	result := uint64(1)
	for i := uint64(2); i <= n; i++ {
		result *= i
	}
	return result
}

func request(c *cli.Context) error {
	group := eventloop.NewGroup("client", 1)

	done := make(chan uint64, 1)
	b := bootstrap.NewBootstrap(group, tcp.ChannelFactory)
	b.Handler(func(p *channel.Pipeline) {
		_ = p.AddLast("frame-decoder", frame.NewDecoder())
		_ = p.AddLast("frame-encoder", frame.NewEncoder())
		_ = p.AddLast("capture", &resultHandler{done: done})
	})

	ch, connectFuture := b.Connect(tcp.Addr(c.String("connect")))
	if err := connectFuture.Await(); err != nil {
		return err
	}

	n := c.Uint("n")
	req := ch.Config().Allocator.Buffer(4, 4)
	if err := req.WriteUint32(uint32(n)); err != nil {
		return err
	}
	if err := ch.WriteAndFlush(req).Await(); err != nil {
		return err
	}

	result := <-done
	fmt.Printf("%d! = %d\n", n, result)
	return ch.Close().Await()
}

type resultHandler struct {
	channel.HandlerBase
	done chan<- uint64
}

func (h *resultHandler) ChannelRead(ctx channel.Context, msg interface{}) {
	bb := msg.(interface{ Bytes() []byte })
	raw := bb.Bytes()
	if r, ok := msg.(interface{ Release() bool }); ok {
		defer r.Release()
	}
	if len(raw) != 8 {
		xlog.Warnf("factorial: expected an 8-byte reply, got %d bytes", len(raw))
		return
	}
	var v uint64
	for _, b := range raw {
		v = v<<8 | uint64(b)
	}
	h.done <- v
}
