// Package message defines the outbound message value and its priority
// ordering shared by the batching and overflow packages.
//
// # Priority
//
// Priority is an explicit ordered enumeration with a defined total order:
//
//	PriorityUrgent > PriorityHigh > PriorityNormal > PriorityLow
//
// Higher priorities are transmitted first. Within equal priority, enqueue
// order is preserved (stable ordering).
//
// # Usage
//
//	msg := message.New([]byte(`{"typing":true}`), message.PriorityUrgent)
//
//	batch := []message.Message{...}
//	message.SortStable(batch) // urgent first, ties keep enqueue order
package message
