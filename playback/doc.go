// Package playback coordinates a frame source and a frame cache behind one
// control surface.
//
// A Controller moves through Idle, Connecting, Initializing, Streaming and
// Paused. Seeks overlay Streaming or Paused:
//
//	ctrl, err := playback.New(src, frames, playback.WithErrorHandler(onErr))
//	err = ctrl.Connect(ctx, "trajectory.simularium")
//	err = ctrl.Start(ctx)
//	err = ctrl.GotoTime(ctx, 2.0)
//	frame, ok := ctrl.NextFrame()
//
// GotoTime and GotoFrame serve a cached frame immediately. On a miss the
// cache is cleared and the frame is requested from the source; until it
// arrives NextFrame holds the playhead. Only one request is outstanding: a
// later seek replaces the target of an earlier one. WithSeekTimeout bounds
// the wait, which is otherwise unlimited.
//
// ChangeSource aborts the installed source, clears the cache and returns to
// Idle. Each source has its own event pump, and events from a retired
// source are discarded.
package playback
