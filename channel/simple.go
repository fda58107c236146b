package channel

// InboundMessageHandler is the generic auto-release base the spec names
// without spelling out (§4.E: "pipeline helpers (SimpleChannelInboundHandler)
// release automatically after channelRead0 returns"). Embed it and
// implement ChannelRead0; if T is a reference-counted ByteBuf, the
// embedding handler's ChannelRead0 does not need to release it — this
// base does so once ChannelRead0 returns, provided T satisfies the
// release contract. Messages not of type T are forwarded unchanged via
// FireChannelRead so a type-filtering handler can sit anywhere in a mixed
// pipeline.
type InboundMessageHandler[T any] struct {
	HandlerBase
	// ChannelRead0 is the user-supplied handler for a decoded/accepted
	// message of type T.
	ChannelRead0 func(ctx Context, msg T)
}

func (h *InboundMessageHandler[T]) ChannelRead(ctx Context, msg interface{}) {
	typed, ok := msg.(T)
	if !ok {
		ctx.FireChannelRead(msg)
		return
	}
	if h.ChannelRead0 != nil {
		h.ChannelRead0(ctx, typed)
	}
	if releasable, ok := interface{}(typed).(interface{ Release() bool }); ok {
		releasable.Release()
	}
}
