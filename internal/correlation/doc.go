// Package correlation matches replies to the requests that caused them.
//
// Messages between motion nodes travel over an unreliable transport with no
// built-in request/response pairing. The Engine keeps one Future per
// outstanding request and resolves it with the first inbound message that
// carries the same correlation key:
//
//   - the uid of the message, verbatim, when it has one
//   - otherwise its path without a trailing /ok, /error or /reply
//
// An /error reply resolves the Future with a *RemoteError. Wait gives up
// after the engine timeout (one second by default) with
// ErrCommunicationTimeout and forgets the Future.
//
//	reply, err := engine.Request(ctx, message.New("/slave/ping").To(addr))
//	if errors.Is(err, correlation.ErrCommunicationTimeout) {
//	    // retry or report the node unreachable
//	}
package correlation
