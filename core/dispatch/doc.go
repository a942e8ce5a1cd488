// Package dispatch hands host messages to the cluster and feeds the results
// back into the originating pipeline.
//
// A [Dispatcher] accepts messages through [Dispatcher.Dispatch], translates
// them into an [Envelope] and puts them on a bounded [Queue]. A fixed pool of
// workers drains the queue, resolves the target address from the original
// message and either sends the envelope to one member (SINGLE) or publishes it
// to all members (ALL).
//
// Every member runs an [Executor] that decodes the envelope, runs the
// configured processing units and records one [Outcome] per attempted unit in
// the envelope's [ExecutionRecord]. For SINGLE sends the mutated envelope is
// returned as the reply; the dispatcher inspects the record and passes the
// message on to the [Producer] or to the [FailureHandler].
//
// Failures in the dispatch plumbing are always reported to the FailureHandler
// with the original message, with two exceptions: a target address that cannot
// be resolved drops the message, and a reply that cannot be translated back
// is logged and dropped.
package dispatch
