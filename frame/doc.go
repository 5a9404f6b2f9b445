// Package frame defines decoded video frames and the sources that produce them.
//
// A [Frame] is owned by exactly one holder at a time. The producer hands it to
// a [Sink]; from then on whoever holds it must either pass it on or call
// [Frame.Release]. Release is idempotent so a frame superseded in a slot and
// a frame consumed by the renderer follow the same path.
//
// Decoders are modelled as a single capability, [Source], with one pull
// operation. Which concrete source is used is decided when the pipeline is
// assembled; the built-in ones are registered by name:
//
//	src, err := frame.Open("testpattern", frame.Options{Width: 1280, Height: 720})
//
// [Pump] runs a source on its own goroutine and pushes every frame it yields
// into a sink, the way a decoder thread feeds the presentation pipeline.
package frame
