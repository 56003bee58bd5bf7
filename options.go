package ledger

import "log/slog"

// Option configures a Ledger.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	storageRoot    string
	defaultDomain  string
	walSegmentCap  int64
	strictTemporal *bool
	logger         *slog.Logger
	version        string
	verifier       Verifier
	eventHooks     []EventHook
	signingPriv    string
	signingPub     string
	signingKeyID   string
}

// WithStorageRoot overrides the WAL/manifest directory from config
// (LEDGER_STORAGE_ROOT env var).
func WithStorageRoot(path string) Option {
	return func(o *resolvedOptions) { o.storageRoot = path }
}

// WithDefaultDomain overrides the domain registry id used when an
// operation omits one (LEDGER_DEFAULT_DOMAIN env var).
func WithDefaultDomain(domain string) Option {
	return func(o *resolvedOptions) { o.defaultDomain = domain }
}

// WithWALSegmentCap overrides the byte cap before a WAL segment rolls.
func WithWALSegmentCap(bytes int64) Option {
	return func(o *resolvedOptions) { o.walSegmentCap = bytes }
}

// WithStrictTemporal overrides whether an append with a backward
// system_time is rejected outright rather than merely logged.
func WithStrictTemporal(strict bool) Option {
	return func(o *resolvedOptions) { o.strictTemporal = &strict }
}

// WithLogger sets the structured logger for the Ledger.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in telemetry resource
// attributes and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithVerifier replaces the auto-configured Ed25519 signer used to
// verify proof signatures on append. Only the last call wins.
func WithVerifier(v Verifier) Option {
	return func(o *resolvedOptions) { o.verifier = v }
}

// WithSigningKeys overrides the signing key paths and key id from config
// (LEDGER_SIGNING_PRIVATE_KEY / LEDGER_SIGNING_PUBLIC_KEY /
// LEDGER_SIGNING_KEY_ID). If WithVerifier is also set, these keys still
// sign appended cells, but append-time verification uses that Verifier.
func WithSigningKeys(privateKeyPath, publicKeyPath, keyID string) Option {
	return func(o *resolvedOptions) {
		o.signingPriv = privateKeyPath
		o.signingPub = publicKeyPath
		o.signingKeyID = keyID
	}
}

// WithEventHook registers an event hook to receive chain lifecycle
// notifications. Multiple hooks may be registered; all registered hooks
// receive every event.
func WithEventHook(hook EventHook) Option {
	return func(o *resolvedOptions) { o.eventHooks = append(o.eventHooks, hook) }
}
