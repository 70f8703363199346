// Package embedpy embeds a dynamically typed guest interpreter in a Go
// process and lets Go code create, inspect, mutate and call guest values,
// while guest code holds and calls back into Go values.
//
// The guest is a Starlark interpreter extended with modules, exceptions and
// a mutable __main__ namespace. It runs in process; there is no subprocess
// and no cgo.
//
// # Lifecycle
//
// A Bridge owns one interpreter. Start initializes it and imports the
// companion module; any other operation starts it lazily with default
// options. Stop finalizes it:
//
//	b := embedpy.New(embedpy.DefaultConfig())
//	if err := b.Start([]string{"--path", "./scripts"}); err != nil {
//		log.Fatal(err)
//	}
//	defer b.Stop()
//
// # Handles
//
// Guest values are referred to by Handle, an opaque number governed by a
// guest reference count. Every operation that returns a Handle transfers one
// reference to the caller, which gives it back with DecRef. Object wraps a
// Handle with a Release method for use with defer:
//
//	m, err := b.Import("math")
//	if err != nil {
//		return err
//	}
//	defer m.Release()
//	root, err := m.CallValue("sqrt", embedpy.Float64, 2.0)
//
// Handles do not survive Stop.
//
// # Conversion
//
// Values crossing the bridge are converted by strategy. A TypeDescriptor
// selects a primitive, class or array strategy; without one the strategy is
// chosen from the runtime type of the value. Go structs, pointers and
// functions reach the guest as proxies whose exported methods and fields
// are attributes; guest dicts fill Go structs through the Serializer.
//
// # Errors
//
// Every failure is an *Error whose Kind is also a sentinel:
//
//	if errors.Is(err, embedpy.ErrAttributeNotFound) { ... }
//
// A guest exception is captured, formatted with its traceback, cleared and
// returned as exactly one *Error.
//
// # Concurrency
//
// A Bridge may be used from any number of goroutines. All guest work is
// serialized by a process-wide reentrant lock keyed by OS thread, so a host
// function called by the guest may call back into the bridge. AllowThreads
// releases the lock around blocking host work.
package embedpy
