package channel

// Initializer is the one-shot handler pattern used by Bootstrap: it
// receives channelRegistered, runs Init to install the real handler set,
// then removes itself before forwarding the event onward — so the
// handlers Init adds see every subsequent inbound event, starting with
// this same channelRegistered's continuation (spec §4.E, §8 invariant 4).
type Initializer struct {
	HandlerBase
	// Init installs the channel's real pipeline. It runs with this
	// Initializer still present (at whatever position AddLast/AddFirst put
	// it), so Init-added handlers land immediately after it and are
	// spliced into their final position once this handler removes itself.
	Init func(pipeline *Pipeline)
}

func (i *Initializer) ChannelRegistered(ctx Context) {
	pipe := ctx.Pipeline()
	if i.Init != nil {
		i.Init(pipe)
	}
	_ = pipe.Remove(ctx.Name())
	ctx.FireChannelRegistered()
}
