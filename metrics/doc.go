// Package metrics counts op traffic through the dispatch bridge.
//
// Every call produces exactly one dispatch record and exactly one completion
// record, classified as sync, async or async_unref. Unref'd async ops are
// counted apart because they do not keep the event loop alive.
package metrics
