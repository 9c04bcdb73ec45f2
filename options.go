package filedb

import (
	"github.com/eztools-software/filedb/internal/crypt"
	"github.com/eztools-software/filedb/internal/dlog"
)

// Cipher re-exports the internal encryption trait so external callers can
// implement and pass one via WithCipher.
type Cipher = crypt.Cipher

// Callbacks are per-handle mutation hooks (spec.md §9, in place of the
// source's process-wide static events).
type Callbacks struct {
	OnAdd    func(index int)
	OnUpdate func(index int, fields map[string]any)
	OnDelete func(index int)
}

type config struct {
	cipher         Cipher
	autoFlush      bool
	cleanThreshold int
	log            *dlog.Logger
	callbacks      Callbacks
}

func defaultConfig() *config {
	return &config{
		autoFlush: true,
		// -1 disables auto-clean by default (maybeAutoClean treats any
		// negative threshold as "off"). spec.md §8's scenarios all expect
		// tombstones to survive until an explicit Clean call; auto-clean is
		// opt-in via WithCleanThreshold.
		cleanThreshold: -1,
		log:            dlog.Default,
	}
}

// Option configures a Database at Create/Open time.
type Option func(*config)

// WithCipher installs an encryption envelope for every record payload
// (spec.md §1, "choice of cipher sits behind a two-function trait").
func WithCipher(c Cipher) Option {
	return func(cfg *config) { cfg.cipher = c }
}

// WithAutoFlush controls whether every mutation persists the index/tail
// immediately (default true) or only on an explicit Flush.
func WithAutoFlush(on bool) Option {
	return func(cfg *config) { cfg.autoFlush = on }
}

// WithCleanThreshold sets the num_deleted count above which a mutation
// triggers auto-clean (spec.md §4.5, "Auto-clean").
func WithCleanThreshold(n int) Option {
	return func(cfg *config) { cfg.cleanThreshold = n }
}

// WithLogger overrides the default stderr logger.
func WithLogger(l *dlog.Logger) Option {
	return func(cfg *config) { cfg.log = l }
}

// WithCallbacks installs mutation hooks.
func WithCallbacks(cb Callbacks) Option {
	return func(cfg *config) { cfg.callbacks = cb }
}
