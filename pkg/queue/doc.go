// Package queue holds outbound operations awaiting delivery to the hub.
//
// Items are kept in one FIFO lane per frame kind (events, reported-property
// patches, method responses). Each lane has at most one item in flight:
//
//	Enqueue ──► pending ──Flush──► in flight ──Acknowledge──► done ──Step──► callback
//
// Completion callbacks fire only from Step, in enqueue order within a lane.
// A callback that enqueues a new item appends it to the lane; the item is
// sent by a later Flush, never within the current pass.
//
// Items that wait longer than the message timeout complete with
// ResultMessageTimeout, and so does an in-flight item whose acknowledgement
// has not arrived within the ack timeout. Close drops every item without
// firing callbacks.
package queue
