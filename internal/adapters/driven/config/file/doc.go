// Package file provides the TOML configuration store kept under the
// ragctx data directory (~/.ragctx/config.toml by default).
package file
