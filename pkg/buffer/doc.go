// Package buffer provides CircularBuffer, a bounded FIFO queue with a
// configurable overflow policy.
//
// The remote simulator source uses it between its websocket reader and its
// decoder: the reader writes raw messages with the Block policy, so a slow
// decoder applies backpressure to the connection instead of losing frames.
//
//	queue, err := buffer.NewCircularBuffer[Message](256,
//	    buffer.WithOverflowPolicy[Message](buffer.Block))
//
//	// reader
//	err = queue.Write(ctx, msg)
//
//	// decoder
//	msg, err := queue.ReadContext(ctx)
//
// DropOldest and DropNewest never block and report dropped items to the
// drop callback. Statistics are always collected; Prometheus metrics are
// registered with WithMetrics.
package buffer
