// Package core contains the config monitor domain contracts, the service name
// resolver, and the refresh dispatch orchestration. Provider extractors,
// transports, and stores depend on this package; core must not depend on any
// of them.
package core
