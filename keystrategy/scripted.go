package keystrategy

import (
	"crypto/sha256"
	"io"
	"sync"
	"time"

	"golang.org/x/crypto/hkdf"

	"sealcore.io/ddf"
	"sealcore.io/errors"
	"sealcore.io/lifecycle"
	"sealcore.io/log"
	"sealcore.io/reload"
)

// aesKeyLen is the AES-256 key size every stretched sub-key is derived to.
const aesKeyLen = 32

// stretch derives a full-entropy AES-256 key from secret via HKDF-SHA256,
// salted by label so two labels sharing a short secret never collide. A
// secret already aesKeyLen bytes or longer is used as-is: it is assumed to
// already carry full entropy, and stretching it would only discard
// caller-supplied bytes.
func stretch(label Label, secret []byte) ([]byte, error) {
	if len(secret) >= aesKeyLen {
		return secret, nil
	}
	r := hkdf.New(sha256.New, secret, []byte(label), []byte("sealcore.io/keystrategy/scripted"))
	key := make([]byte, aesKeyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

// defaultScriptLabel is the distinguished label a Script result must always
// include; its key becomes the strategy's DefaultKey.
const defaultScriptLabel Label = "default"

// ScriptResult is what a compiled Script returns: a label -> key mapping,
// always containing defaultScriptLabel.
type ScriptResult map[Label][]byte

// Script is a compiled callback bound to a custom object at construction
// time. The source material describes this as "a compiled script with a
// caller-supplied custom object bound", evaluated against a hosting
// scripting engine that is explicitly out of scope for the core; here the
// compiled script is simply a Go function closed over whatever custom
// object it needs; custom exposes that object as a DDF tree so the
// signature matches the tagged-value-tree contract described for it.
type Script func(custom *ddf.Node) (ScriptResult, error)

// ScriptedStrategy re-evaluates a Script on a reload interval, swapping in
// the returned label->key mapping atomically. Unlike KeystoreStrategy it
// never merges across reloads: each tick's result fully replaces the live
// mapping, since the script itself is responsible for deciding which
// labels remain valid.
type ScriptedStrategy struct {
	guard lifecycle.Guard

	script          Script
	custom          *ddf.Node
	reloadDelay     time.Duration
	failFast        bool
	lockedAtStartup bool

	mu           sync.RWMutex
	defaultLabel Label
	defaultKey   []byte
	keys         map[Label][]byte

	reloadMu sync.Mutex

	obsMu                sync.Mutex
	lastReloadAttempt    time.Time
	lastSuccessfulReload time.Time
	lastFailureCause     error

	driver *reload.Driver
}

var _ KeyStrategy = (*ScriptedStrategy)(nil)
var _ Destroyer = (*ScriptedStrategy)(nil)

// ScriptOption configures a ScriptedStrategy at construction time.
type ScriptOption func(*ScriptedStrategy)

// WithScript sets the compiled callback. Required.
func WithScript(s Script) ScriptOption {
	return func(st *ScriptedStrategy) { st.script = s }
}

// WithCustomObject sets the custom object bound into every Script
// evaluation.
func WithCustomObject(custom *ddf.Node) ScriptOption {
	return func(st *ScriptedStrategy) { st.custom = custom }
}

// WithScriptUpdateInterval sets update_interval, the reload tick period.
func WithScriptUpdateInterval(d time.Duration) ScriptOption {
	return func(st *ScriptedStrategy) { st.reloadDelay = d }
}

// WithScriptFailFast makes New return an error if the initial evaluation
// fails.
func WithScriptFailFast(failFast bool) ScriptOption {
	return func(st *ScriptedStrategy) { st.failFast = failFast }
}

// WithScriptLockedAtStartup skips the initial evaluation and self-test.
func WithScriptLockedAtStartup(locked bool) ScriptOption {
	return func(st *ScriptedStrategy) { st.lockedAtStartup = locked }
}

// NewScripted constructs a ScriptedStrategy and performs its initial
// evaluation. The background reload driver is started immediately;
// callers must call Destroy when done with the strategy.
func NewScripted(opts ...ScriptOption) (*ScriptedStrategy, error) {
	const op = errors.Op("keystrategy.NewScripted")
	st := &ScriptedStrategy{
		reloadDelay: defaultReloadCheckDelay,
		keys:        make(map[Label][]byte),
	}
	for _, opt := range opts {
		opt(st)
	}
	if st.script == nil {
		return nil, errors.E("keystrategy", op, errors.ConstraintViolation,
			errors.Str("a script is required"))
	}

	if err := st.guard.Initialize("keystrategy", op); err != nil {
		return nil, err
	}

	if !st.lockedAtStartup {
		if err := st.doReload(); err != nil {
			st.recordFailure(err)
			if st.failFast {
				return nil, err
			}
		}
	}

	st.driver = reload.New(st.reloadDelay, nil, st.doReload)
	st.driver.OnTick(st.recordFailure)
	st.driver.Start()

	return st, nil
}

// doReload evaluates the script and atomically replaces the live mapping.
func (st *ScriptedStrategy) doReload() error {
	const op = errors.Op("ScriptedStrategy.doReload")

	st.reloadMu.Lock()
	defer st.reloadMu.Unlock()

	st.obsMu.Lock()
	st.lastReloadAttempt = time.Now()
	st.obsMu.Unlock()

	rawResult, err := st.script(st.custom)
	if err != nil {
		return errors.E("keystrategy", op, errors.KeyUnavailable, err)
	}
	if _, ok := rawResult[defaultScriptLabel]; !ok {
		return errors.E("keystrategy", op, errors.KeyUnavailable,
			errors.Str("script result has no default label"))
	}

	result := make(ScriptResult, len(rawResult))
	for label, secret := range rawResult {
		if err := validateLabel(op, label); err != nil {
			return err
		}
		key, err := stretch(label, secret)
		if err != nil {
			return errors.E("keystrategy", op, errors.KeyUnavailable, err)
		}
		result[label] = key
	}
	defaultKey := result[defaultScriptLabel]
	if err := selfTest(defaultKey); err != nil {
		return err
	}

	st.mu.Lock()
	st.keys = result
	st.defaultLabel = defaultScriptLabel
	st.defaultKey = defaultKey
	st.mu.Unlock()

	st.obsMu.Lock()
	st.lastSuccessfulReload = time.Now()
	st.lastFailureCause = nil
	st.obsMu.Unlock()
	return nil
}

func (st *ScriptedStrategy) recordFailure(err error) {
	if err == nil {
		return
	}
	log.Error.Printf("keystrategy: reload failed: %v", err)
	st.obsMu.Lock()
	st.lastFailureCause = err
	st.obsMu.Unlock()
}

// DefaultKey returns the key under the distinguished "default" label from
// the most recently evaluated script result.
func (st *ScriptedStrategy) DefaultKey() (Label, []byte, error) {
	const op = errors.Op("ScriptedStrategy.DefaultKey")
	if err := st.guard.RequireInitialized("keystrategy", op); err != nil {
		return "", nil, err
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.defaultKey == nil {
		return "", nil, keyUnavailable(op, "no successful script evaluation yet")
	}
	return st.defaultLabel, st.defaultKey, nil
}

// Key returns the key registered under label in the most recently
// evaluated script result.
func (st *ScriptedStrategy) Key(label Label) ([]byte, error) {
	const op = errors.Op("ScriptedStrategy.Key")
	if err := st.guard.RequireInitialized("keystrategy", op); err != nil {
		return nil, err
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	key, ok := st.keys[label]
	if !ok {
		return nil, keyNotFound(op, label)
	}
	return key, nil
}

// Destroy stops the background reload driver. It is idempotent.
func (st *ScriptedStrategy) Destroy() {
	if st.driver != nil {
		st.driver.Stop()
	}
	st.guard.Destroy()
}
