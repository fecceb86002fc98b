// Package router dispatches inbound messages to command handlers.
//
// A Router holds an ordered list of Filters. Each filter selects messages
// by transport protocol, path alias (exact or prefix), sender and minimum
// argument count. Dispatch invokes every accepting filter in registration
// order and stops after the first accepting exclusive one, so order is
// part of the contract:
//
//	r := router.New()
//	r.Register(router.Filter{Name: "timeout", Alias: "/", Prefix: true, Target: resetClock})
//	r.Register(router.Filter{Name: "get", Alias: "/slave/get", MinArgs: 1, Exclusive: true, Target: get})
package router
