/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package limits provides CallLimiter, an admission-control primitive for REST calls.
//
// CallLimiter gates a unit of work through two independent capacity checks:
//   - concurrent permits: how many calls may be accepted at the same time.
//     The check is non-blocking, a call that cannot get a permit is denied immediately.
//   - active permits: how many accepted calls may be executing at the same time.
//     The check is blocking, an accepted call waits until an active permit is free.
//
// Zero means "no limit" for both caps. Both caps may be changed at runtime.
// Changing a cap replaces the underlying permit pool with a freshly sized one:
// calls that already hold (or wait for) a permit of the old pool keep working with the old pool
// and release into it, while all subsequent calls use the new pool.
//
// Permits are released on every exit path of the wrapped work, including returned errors and panics.
package limits
