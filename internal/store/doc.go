// Package store keeps the latest probe outcome of every route in memory
// and publishes each change to subscribers.
//
// The main components are:
//
//   - [Store]: Interface defining storage and subscription operations
//   - [MemoryStore]: In-memory implementation of Store with pub/sub
//   - [StatusResult]: Latest status of one route plus its rolling uptime
//
// MemoryStore also satisfies the result sink interface, so it can be teed
// next to a database sink. Subscribers receive updates via channels with
// non-blocking sends (slow subscribers miss updates rather than block
// probing).
package store
