/*
Package host drives audio plugins in real time or offline.

Concept

Plugins are hosted by an external Plugin Engine which this package treats
as a black box behind the Engine interface. Host sits between the callers
(audio hardware callbacks, offline renderers, MIDI input goroutines) and
the engines and is responsible for three things:

    Scheduler - sample-accurate automation and MIDI within one block;
    Chain - routing a block through an ordered list of engines;
    Callback - the audio thread entry point fed by lock-free queues.

Scheduling

A block of n frames is split into sub-blocks at parameter change offsets.
Changes scheduled at the start of a sub-block are applied before the engine
is invoked; MIDI events are delivered to the sub-block that contains their
offset, so an event exactly at a boundary goes to the later sub-block:

    s := host.NewScheduler(2, 256)
    n, err := s.Run(engine, in, out, 512, midiIn, []host.ParamChange{
        {Offset: 0, Index: 0, Value: 0},
        {Offset: 256, Index: 0, Value: 1},
    }, midiOut)

Without changes exactly one engine call is made with the caller's buffers.

Chaining

    c, err := host.NewChain([]host.Engine{synth, reverb})

MIDI is exchanged with the first stage only. Audio flows sequentially;
channels a stage expects beyond what the previous stage produced are
zero-filled, surplus channels are dropped. A chain does not own its
engines and never closes them.

Threads

The audio thread calls Callback.Render and must not block: it takes no
locks, does not allocate and performs no I/O. Control goroutines talk to it
only through ring.Buffer queues. An engine may be read from any goroutine
through its own locked accessors but is processed from exactly one
goroutine for its whole life. Shutdown is stop, then wait for the last
callback, then close.
*/
package host
