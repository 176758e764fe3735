// Package crawler resolves the follower or friend list of every pending
// user and records the results in a graph.
//
// A crawl walks its targets one at a time. Each list is fetched page by
// page through a Fetcher; transient failures (rate limits, dropped
// connections, 5xx) are retried with the operation's cooldown as back-off
// and are never recorded as permanent. A listing that yields no result is
// disambiguated with a profile lookup: public accounts are retried until
// they resolve, protected or missing ones become error users. The graph is
// checkpointed every SavePoint users and once more at the end, when the
// checkpoint is also copied to a backup label.
//
// Checker re-examines error users in a later run, and RunPartitioned
// splits a target set across independent crawlers whose graphs are merged
// afterwards.
package crawler
