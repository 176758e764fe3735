// Package ratelimit coordinates API credentials across operation kinds.
//
// A Pool owns N credentials, each with one availability flag per
// social.OperationKind. Acquire returns the first credential whose flag is
// set, polling until one frees up; Release clears the flag and asks the
// shared Scheduler to set it again once the kind's cooldown has passed.
//
//	sched := ratelimit.NewScheduler()
//	defer sched.Stop()
//
//	pool, err := ratelimit.NewPool(clients, sched)
//	slot, err := pool.Acquire(ctx, social.FollowerPage, 15*time.Second)
//	page, err := slot.Value.FollowerIDsPage(ctx, id, cursor)
//	pool.Release(slot, social.FollowerPage, 62*time.Second)
//
// With a single credential the pool is a pass-through and a Pacer spaces
// the calls instead.
package ratelimit
