// Package testutil provides fixtures shared by package tests.
//
// Fixtures:
//
//   - Frames, Info and ContainerBytes build deterministic trajectories and
//     encode them as binary containers.
//   - MockModel is an in-process model with call counting and error
//     injection.
//   - FakeSimulator is an httptest websocket server speaking the remote
//     simulator protocol: it answers file initialization, streams or
//     serves single frames as JSON or binary bundles, and replies to
//     health checks. Hooks let a test inject stale or malformed responses.
//
// All types are safe for concurrent use.
//
//	sim := testutil.NewFakeSimulator(t, testutil.Info(10, 1), testutil.Frames(10, 1))
//	src, err := source.NewRemoteSource(sim.URL())
package testutil
