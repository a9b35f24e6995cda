package keystrategy

import (
	"strconv"
	"sync"
	"time"

	"sealcore.io/errors"
	"sealcore.io/lifecycle"
	"sealcore.io/log"
	"sealcore.io/reload"
	"sealcore.io/resource"
)

// defaultReloadCheckDelay is used when WithUpdateInterval is not set.
const defaultReloadCheckDelay = time.Minute

// KeystoreStrategy is the keystore-backed, reloadable KeyStrategy: the
// default label/key pair is (keyAlias+N, keystore[keyAlias+N]) where N is
// read from a version resource; Key looks up any previously loaded alias,
// never evicting an entry once seen, so data sealed under an older version
// keeps opening across rotations.
type KeystoreStrategy struct {
	guard lifecycle.Guard

	keystoreResource resource.Resource
	keyVersion       resource.Resource
	keystorePassword string
	keyPassword      string
	keyAlias         string
	reloadDelay      time.Duration
	failFast         bool
	lockedAtStartup  bool

	mu           sync.RWMutex // guards defaultLabel/defaultKey/keys
	defaultLabel Label
	defaultKey   []byte
	keys         map[Label][]byte

	reloadMu sync.Mutex // admits one in-flight reload at a time

	obsMu                sync.Mutex
	lastVersionModified  time.Time
	lastReloadAttempt    time.Time
	lastSuccessfulReload time.Time
	lastFailureCause     error

	driver *reload.Driver
}

var _ KeyStrategy = (*KeystoreStrategy)(nil)
var _ Destroyer = (*KeystoreStrategy)(nil)

// Option configures a KeystoreStrategy at construction time.
type Option func(*KeystoreStrategy)

// WithKeystoreResource sets the resource holding the passphrase-protected
// container of named secret keys. Required.
func WithKeystoreResource(r resource.Resource) Option {
	return func(s *KeystoreStrategy) { s.keystoreResource = r }
}

// WithKeyVersionResource sets the resource holding the current version
// integer N. Required.
func WithKeyVersionResource(r resource.Resource) Option {
	return func(s *KeystoreStrategy) { s.keyVersion = r }
}

// WithKeystorePassword sets the passphrase protecting the keystore
// container as a whole.
func WithKeystorePassword(password string) Option {
	return func(s *KeystoreStrategy) { s.keystorePassword = password }
}

// WithKeyPassword sets the per-entry passphrase. The source material
// distinguishes a container-level keystore_password from an entry-level
// key_password; this package combines the two into a single scrypt input
// (see combinedPassword) rather than layering two independent KDFs, a
// simplification recorded in the design document. When no key password is
// set, the keystore password alone is the scrypt input.
func WithKeyPassword(password string) Option {
	return func(s *KeystoreStrategy) { s.keyPassword = password }
}

// WithKeyAlias sets the base alias; the default label at version N is
// keyAlias+N.
func WithKeyAlias(alias string) Option {
	return func(s *KeystoreStrategy) { s.keyAlias = alias }
}

// WithUpdateInterval sets the interval at which the background task
// re-checks the version resource's modification time.
func WithUpdateInterval(d time.Duration) Option {
	return func(s *KeystoreStrategy) { s.reloadDelay = d }
}

// WithFailFast makes New return an error if the initial load fails,
// instead of leaving the strategy unusable but retrying in the background.
func WithFailFast(failFast bool) Option {
	return func(s *KeystoreStrategy) { s.failFast = failFast }
}

// WithLockedAtStartup skips the initial load in New, and with it the
// initial self-test, for when the key source is expected to be unavailable
// at boot.
func WithLockedAtStartup(locked bool) Option {
	return func(s *KeystoreStrategy) { s.lockedAtStartup = locked }
}

// New constructs a KeystoreStrategy and performs its initial load. The
// background reload driver is started immediately; callers must call
// Destroy when done with the strategy.
func New(opts ...Option) (*KeystoreStrategy, error) {
	const op = errors.Op("keystrategy.New")
	s := &KeystoreStrategy{
		keyAlias:    "key-",
		reloadDelay: defaultReloadCheckDelay,
		keys:        make(map[Label][]byte),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.keystoreResource == nil || s.keyVersion == nil {
		return nil, errors.E("keystrategy", op, errors.ConstraintViolation,
			errors.Str("keystore resource and key version resource are required"))
	}

	if err := s.guard.Initialize("keystrategy", op); err != nil {
		return nil, err
	}

	if !s.lockedAtStartup {
		if err := s.doReload(); err != nil {
			s.recordFailure(err)
			if s.failFast {
				return nil, err
			}
		}
	}

	s.driver = reload.New(s.reloadDelay, s.shouldReload, s.doReload)
	s.driver.OnTick(s.recordFailure)
	s.driver.Start()

	return s, nil
}

func (s *KeystoreStrategy) combinedPassword() string {
	if s.keyPassword == "" {
		return s.keystorePassword
	}
	return s.keystorePassword + "\x00" + s.keyPassword
}

// shouldReload is the reload.Driver predicate: reload only when the
// version resource's modification time has advanced.
func (s *KeystoreStrategy) shouldReload() bool {
	mod, ok := s.keyVersion.LastModified()
	if !ok {
		return true
	}
	s.obsMu.Lock()
	changed := mod.After(s.lastVersionModified)
	s.obsMu.Unlock()
	return changed
}

// doReload reads the current version, decrypts the keystore, and merges
// newly discovered aliases into the live key set without evicting any
// previously seen entry.
func (s *KeystoreStrategy) doReload() error {
	const op = errors.Op("KeystoreStrategy.doReload")

	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	s.obsMu.Lock()
	s.lastReloadAttempt = time.Now()
	s.obsMu.Unlock()

	mod, modKnown := s.keyVersion.LastModified()
	n, err := resource.ReadVersion(s.keyVersion)
	if err != nil {
		return errors.E("keystrategy", op, errors.KeyUnavailable, err)
	}

	ks, err := loadKeystore(s.keystoreResource, s.combinedPassword())
	if err != nil {
		return err
	}

	defaultAlias := s.keyAlias + strconv.Itoa(n)
	defaultKey, ok := ks[defaultAlias]
	if !ok {
		return errors.E("keystrategy", op, errors.KeyUnavailable,
			errors.Str("keystore has no entry for current version alias "+defaultAlias))
	}
	if err := selfTest(defaultKey); err != nil {
		return err
	}

	s.mu.Lock()
	if s.keys == nil {
		s.keys = make(map[Label][]byte)
	}
	for alias, key := range ks {
		s.keys[Label(alias)] = key
	}
	s.defaultLabel = Label(defaultAlias)
	s.defaultKey = defaultKey
	s.mu.Unlock()

	s.obsMu.Lock()
	if modKnown {
		s.lastVersionModified = mod
	}
	s.lastSuccessfulReload = time.Now()
	s.lastFailureCause = nil
	s.obsMu.Unlock()
	return nil
}

func (s *KeystoreStrategy) recordFailure(err error) {
	if err == nil {
		return
	}
	log.Error.Printf("keystrategy: reload failed: %v", err)
	s.obsMu.Lock()
	s.lastFailureCause = err
	s.obsMu.Unlock()
}

// refreshIfStale performs an opportunistic reload attempt. A reader that
// finds a reload already in progress proceeds with whatever state is
// currently live, relying on the background driver to catch up. A reader
// that finds none releases the probe lock and runs doReload itself; since
// doReload takes reloadMu again, that reader waits if the background
// driver starts a reload in between.
func (s *KeystoreStrategy) refreshIfStale() {
	if !s.shouldReload() {
		return
	}
	if !s.reloadMu.TryLock() {
		return
	}
	s.reloadMu.Unlock()
	if err := s.doReload(); err != nil {
		s.recordFailure(err)
	}
}

// DefaultKey returns the label and key for the current version, refreshing
// first if the version resource appears to have changed.
func (s *KeystoreStrategy) DefaultKey() (Label, []byte, error) {
	const op = errors.Op("KeystoreStrategy.DefaultKey")
	if err := s.guard.RequireInitialized("keystrategy", op); err != nil {
		return "", nil, err
	}
	s.refreshIfStale()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.defaultKey == nil {
		return "", nil, keyUnavailable(op, "no successful keystore load yet")
	}
	return s.defaultLabel, s.defaultKey, nil
}

// Key returns the key registered under label, refreshing first if the
// version resource appears to have changed.
func (s *KeystoreStrategy) Key(label Label) ([]byte, error) {
	const op = errors.Op("KeystoreStrategy.Key")
	if err := s.guard.RequireInitialized("keystrategy", op); err != nil {
		return nil, err
	}
	s.refreshIfStale()

	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.keys[label]
	if !ok {
		return nil, keyNotFound(op, label)
	}
	return key, nil
}

// Destroy stops the background reload driver. It is idempotent.
func (s *KeystoreStrategy) Destroy() {
	if s.driver != nil {
		s.driver.Stop()
	}
	s.guard.Destroy()
}
