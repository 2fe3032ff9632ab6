// Package extractors turns source-repository webhook payloads into the ordered
// list of changed paths the monitor resolves into service names. Each provider
// recognizes its own event headers; Composite tries them in order.
package extractors
