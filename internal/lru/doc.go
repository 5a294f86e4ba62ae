// Package lru provides the recency-ordered bounded index shared by the
// metadata cache and the blob cache's in-memory key table. An Index keeps its
// entries on a doubly linked list ordered by last access; every Get and Put
// moves the touched entry to the front, and overflow trims from the back.
// Index is not safe for concurrent use: owners serialize access with their
// own mutex so that recency bumps and evictions stay in one critical section.
package lru
