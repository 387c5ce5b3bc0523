// Package config owns the hot-reloadable bot configuration: global response
// defaults, the ordered response registry with its cooldown/hit-rate gating,
// and the store that shares one immutable snapshot between concurrent
// message handlers and the reload path.
package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kingfisher-im/kingfisher/internal/rules"
)

// DefaultCooldown applies when the config file does not set
// default_text_detect_cooldown.
const DefaultCooldown = 45 * time.Second

// ResponseType discriminates ResponseKind variants.
type ResponseType int

const (
	// KindNone means a response matched but sends nothing.
	KindNone ResponseType = iota
	// KindText sends fixed text.
	KindText
	// KindRandomText sends one uniformly chosen text from a list.
	KindRandomText
	// KindImage sends an image by path.
	KindImage
	// KindTextAndImage sends fixed text plus an image.
	KindTextAndImage
)

// ResponseKind is the content a response produces. On the wire it is
// flattened into the response table and the variant is recovered from which
// fields are present: a string `content` is Text, an array `content` is
// RandomText, `path` alone is Image, both is TextAndImage, neither is None.
type ResponseKind struct {
	Type    ResponseType
	Content string   // Text, TextAndImage
	Choices []string // RandomText
	Path    string   // Image, TextAndImage
}

// RegisteredResponse binds a ruleset to response content plus per-response
// gating overrides. lastTriggered is the only mutable field; it is guarded
// by mu and lives as long as the enclosing Config snapshot.
type RegisteredResponse struct {
	// Name is used only for logging, uniqueness is not enforced.
	Name string
	// HitRate overrides Config.DefaultHitRate when non-nil. Must be in [0,1].
	HitRate *float64
	// Cooldown overrides Config.DefaultCooldown when non-nil.
	Cooldown *time.Duration
	// Ruleset decides whether a message is a candidate.
	Ruleset *rules.Ruleset
	// Kind is what gets sent on a hit.
	Kind ResponseKind
	// Unskippable responses ignore the skip-hit-rate token.
	Unskippable bool

	mu            sync.Mutex
	lastTriggered time.Time
}

// Config is one immutable configuration snapshot. Reload replaces the whole
// snapshot; nothing in it is mutated in place except each response's
// last-triggered time.
type Config struct {
	// DefaultCooldown is the minimum time between two triggers of the same
	// response, unless the response overrides it.
	DefaultCooldown time.Duration
	// DefaultHitRate is the probability a matching response actually fires,
	// unless the response overrides it.
	DefaultHitRate float64
	// SkipHitRateText bypasses the hit-rate gate when present verbatim in a
	// message. Empty means the gate can never be bypassed.
	SkipHitRateText string
	// SkipCooldownText bypasses the cooldown gate when present verbatim in a
	// message. Empty means the gate can never be bypassed.
	SkipCooldownText string
	// HelpText is free-form operator documentation carried in the file.
	HelpText string
	// Chats restricts the bot to the listed chat IDs when non-empty.
	Chats []string
	// Responses are tried in declaration order; the first eligible one wins.
	Responses []*RegisteredResponse
}

// FindResponse evaluates a message against every response in declaration
// order and returns the content of the first one that matches and passes
// gating, or nil. ref identifies the message in logs. now is the message
// timestamp, rng draws uniform values in [0,1).
//
// The per-response gate is held from the cooldown check through the
// last-triggered write so two concurrent messages cannot double-trigger one
// response inside a cooldown window. Contention on one response never blocks
// evaluation of another.
func (c *Config) FindResponse(text, ref string, now time.Time, rng func() float64, log *zap.Logger) *ResponseKind {
	for _, r := range c.Responses {
		if kind := r.findValidResponse(text, c, ref, now, rng, log); kind != nil {
			return kind
		}
	}
	return nil
}

// MatchNames returns the names of every response whose ruleset matches text,
// ignoring gating and mutating nothing. Used by admin tooling.
func (c *Config) MatchNames(text string) []string {
	var names []string
	for _, r := range c.Responses {
		if r.Ruleset.Matches(text) {
			names = append(names, r.Name)
		}
	}
	return names
}

func (r *RegisteredResponse) findValidResponse(text string, c *Config, ref string, now time.Time, rng func() float64, log *zap.Logger) *ResponseKind {
	if !r.Ruleset.Matches(text) {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cooldown := c.DefaultCooldown
	if r.Cooldown != nil {
		cooldown = *r.Cooldown
	}

	elapsed := now.Sub(r.lastTriggered)
	if elapsed <= cooldown && !containsToken(text, c.SkipCooldownText) {
		log.Debug("cooldown",
			zap.String("response", r.Name),
			zap.String("message", ref),
			zap.Duration("remaining", cooldown-elapsed))
		return nil
	}

	hitRate := c.DefaultHitRate
	if r.HitRate != nil {
		hitRate = *r.HitRate
	}

	if rng() > hitRate && (r.Unskippable || !containsToken(text, c.SkipHitRateText)) {
		log.Debug("miss",
			zap.String("response", r.Name),
			zap.String("message", ref))
		return nil
	}

	log.Debug("hit",
		zap.String("response", r.Name),
		zap.String("message", ref))

	r.lastTriggered = now
	return &r.Kind
}

// containsToken is a verbatim, case-sensitive substring check. The empty
// token never matches: strings.Contains(s, "") is always true and an unset
// skip token must not bypass a gate.
func containsToken(text, token string) bool {
	return token != "" && strings.Contains(text, token)
}

// LastTriggered returns when the response last fired. The zero time means
// never; the value resets whenever the config is reloaded.
func (r *RegisteredResponse) LastTriggered() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastTriggered
}

// Load reads and validates a TOML config file. Any malformed response, bad
// rule regex, or out-of-range hit rate fails the whole load.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Save serializes the config to path. Errors are always surfaced; a failed
// save leaves the in-memory config untouched.
func Save(c *Config, path string) error {
	raw, err := Encode(c)
	if err != nil {
		return fmt.Errorf("serialize config: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return nil
}
