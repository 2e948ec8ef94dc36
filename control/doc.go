// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration, logging and runtime metrics shared by the loofah engines
// and channels.
//
// Provides:
//   - Config with defaults, environment and .env loading (LOOFAH_* keys)
//   - zap logger construction from the configured level
//   - Prometheus metrics collector; a nil *Metrics records nothing
package control
