// Package trajstream streams agent-based simulation trajectories
// from a source into a bounded frame cache and plays them back with seeking.
//
// # Architecture
//
// A pipeline has four parts:
//
//	source (remote | client | file) --events--> playback.Controller --> cache.FrameCache
//	                                   <--requests--
//
//   - codec decodes binary trajectory containers, flat agent records and
//     binary frame bundles, and validates trajectory metadata.
//   - source implements the simulator contract three ways: a websocket
//     connection to a remote simulator, an in-process model, and a local
//     container file. Sources run their own goroutines and report frames,
//     end of trajectory and errors on an event channel.
//   - pkg/cache holds arrived frames in frame-number order within a byte
//     budget, evicting from the oldest end.
//   - playback owns the source and the cache. It runs the lifecycle state
//     machine, serves seeks from the cache when it can and otherwise asks
//     the source and waits.
//
// Supporting packages: config loads YAML or JSON pipeline configuration,
// errors classifies failures as transient, invalid or fatal, metric exports
// Prometheus metrics and pkg/buffer is the bounded queue behind the remote
// source's inbound messages.
//
// # Basic Usage
//
//	frames, _ := cache.New(cache.DefaultConfig())
//	src, _ := source.OpenFileSource("run.traj")
//	ctrl, _ := playback.New(src, frames)
//	defer ctrl.Close()
//
//	if err := ctrl.Connect(ctx, "run.traj"); err != nil {
//		return err
//	}
//	_ = ctrl.GotoTime(ctx, 2.0)
//	_ = ctrl.Start(ctx)
//	frame, ok := ctrl.NextFrame()
//
// The cmd/trajinfo tool summarizes container files and plays them through a
// controller.
package trajstream
