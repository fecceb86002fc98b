// Package remote implements a driver.Driver for the drive of another
// motion node. Every operation is a request over the message transport:
//
//	Get(ctx, key)        -> /slave/get key        <- /slave/get/ok key value
//	Set(ctx, key, value) -> /slave/set key value  <- /slave/set/ok key value
//	Ping(ctx)            -> /slave/ping           <- /slave/ping/ok
//
// An /error reply or a missing reply surfaces as driver.ErrDriver wrapping
// the correlation error.
package remote
