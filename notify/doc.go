// Package notify implements the go-live notification loop: it polls live status
// for a fixed watchlist, posts one message per live session to a single chat
// destination and forgets channels once they go offline.
package notify
