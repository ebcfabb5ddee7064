package mgoose

// Option customizes Manager construction (spec.md §4.1 `new(...)`).
type Option func(*Manager)

// WithDefaultHandler installs the manager-wide fallback handler used
// when a connection has no per-connection or parent-listener handler.
func WithDefaultHandler(h Handler) Option {
	return func(m *Manager) { m.defaultHandler = h }
}

// WithWakeup enables the cross-thread wakeup mailbox.
func WithWakeup() Option {
	return func(m *Manager) { m.wakeupEnabled = true }
}

// WithErrorHandler installs the handler invoked when a user handler
// panics; if this handler itself panics, the manager falls back to
// logging a stack trace (spec.md §7 kind 3).
func WithErrorHandler(h func(c *Connection, recovered any)) Option {
	return func(m *Manager) { m.errorHandler = h }
}

// ConnOption customizes a single Listen/Connect call.
type ConnOption func(*connConfig)

type connConfig struct {
	handler  Handler
	httpSet  bool
	httpWant bool
}

// WithHandler installs a per-connection handler override at
// listen/connect time.
func WithHandler(h Handler) ConnOption {
	return func(c *connConfig) { c.handler = h }
}

// WithHTTP forces the HTTP protocol discriminator on or off, overriding
// scheme inference (spec.md §4.1).
func WithHTTP(enabled bool) ConnOption {
	return func(c *connConfig) { c.httpSet, c.httpWant = true, enabled }
}
