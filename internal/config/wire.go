package config

import (
	"bytes"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/kingfisher-im/kingfisher/internal/rules"
)

// document mirrors the on-disk TOML layout. Durations travel as whole
// seconds, matching the original file format.
type document struct {
	DefaultCooldownSecs *int64        `toml:"default_text_detect_cooldown"`
	DefaultHitRate      *float64      `toml:"default_hit_rate"`
	SkipHitRateText     string        `toml:"skip_hit_rate_text"`
	SkipCooldownText    string        `toml:"skip_duration_text"`
	HelpText            string        `toml:"help_text"`
	Chats               []string      `toml:"chats"`
	Responses           []responseDoc `toml:"responses"`
}

// responseDoc holds one [[responses]] table. The response content variant is
// flattened into the table rather than tagged: content may be a string or an
// array of strings, and path may accompany either a string content or stand
// alone. See kindFromDoc.
type responseDoc struct {
	Name         string   `toml:"name"`
	Ruleset      string   `toml:"ruleset"`
	HitRate      *float64 `toml:"hit_rate"`
	CooldownSecs *int64   `toml:"cooldown"`
	Unskippable  bool     `toml:"unskippable"`
	Content      any      `toml:"content"`
	Path         string   `toml:"path"`
}

// Decode parses raw TOML into a validated Config.
func Decode(raw []byte) (*Config, error) {
	var doc document
	if err := toml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}

	cfg := &Config{
		DefaultCooldown:  DefaultCooldown,
		DefaultHitRate:   1.0,
		SkipHitRateText:  doc.SkipHitRateText,
		SkipCooldownText: doc.SkipCooldownText,
		HelpText:         doc.HelpText,
		Chats:            doc.Chats,
	}
	if doc.DefaultCooldownSecs != nil {
		cfg.DefaultCooldown = time.Duration(*doc.DefaultCooldownSecs) * time.Second
	}
	if doc.DefaultHitRate != nil {
		cfg.DefaultHitRate = *doc.DefaultHitRate
	}
	if cfg.DefaultHitRate < 0 || cfg.DefaultHitRate > 1 {
		return nil, fmt.Errorf("default_hit_rate %v outside [0, 1]", cfg.DefaultHitRate)
	}

	for i, rd := range doc.Responses {
		resp, err := rd.toResponse()
		if err != nil {
			return nil, fmt.Errorf("response %d (%q): %w", i+1, rd.Name, err)
		}
		cfg.Responses = append(cfg.Responses, resp)
	}

	return cfg, nil
}

func (rd responseDoc) toResponse() (*RegisteredResponse, error) {
	rs, err := rules.Parse(rd.Ruleset)
	if err != nil {
		return nil, err
	}

	kind, err := kindFromDoc(rd.Content, rd.Path)
	if err != nil {
		return nil, err
	}

	resp := &RegisteredResponse{
		Name:        rd.Name,
		Ruleset:     rs,
		Kind:        kind,
		Unskippable: rd.Unskippable,
	}
	if rd.HitRate != nil {
		if *rd.HitRate < 0 || *rd.HitRate > 1 {
			return nil, fmt.Errorf("hit_rate %v outside [0, 1]", *rd.HitRate)
		}
		hr := *rd.HitRate
		resp.HitRate = &hr
	}
	if rd.CooldownSecs != nil {
		cd := time.Duration(*rd.CooldownSecs) * time.Second
		resp.Cooldown = &cd
	}
	return resp, nil
}

// kindFromDoc recovers the content variant from which fields are present.
func kindFromDoc(content any, path string) (ResponseKind, error) {
	switch c := content.(type) {
	case nil:
		if path != "" {
			return ResponseKind{Type: KindImage, Path: path}, nil
		}
		return ResponseKind{Type: KindNone}, nil

	case string:
		if path != "" {
			return ResponseKind{Type: KindTextAndImage, Content: c, Path: path}, nil
		}
		return ResponseKind{Type: KindText, Content: c}, nil

	case []any:
		if path != "" {
			return ResponseKind{}, fmt.Errorf("path cannot accompany a content list")
		}
		if len(c) == 0 {
			return ResponseKind{}, fmt.Errorf("content list is empty")
		}
		choices := make([]string, len(c))
		for i, v := range c {
			s, ok := v.(string)
			if !ok {
				return ResponseKind{}, fmt.Errorf("content list element %d is not a string", i+1)
			}
			choices[i] = s
		}
		return ResponseKind{Type: KindRandomText, Choices: choices}, nil

	default:
		return ResponseKind{}, fmt.Errorf("content must be a string or a list of strings, got %T", content)
	}
}

// Encode serializes a Config back to TOML. Absent optional fields are
// omitted so save/load round-trips are lossless; the per-response
// last-triggered time is runtime state and is never written. Output is
// deterministic (the encoder sorts map keys).
func Encode(c *Config) ([]byte, error) {
	doc := map[string]any{
		"default_text_detect_cooldown": int64(c.DefaultCooldown / time.Second),
		"default_hit_rate":             c.DefaultHitRate,
		"skip_hit_rate_text":           c.SkipHitRateText,
		"skip_duration_text":           c.SkipCooldownText,
	}
	if c.HelpText != "" {
		doc["help_text"] = c.HelpText
	}
	if len(c.Chats) > 0 {
		doc["chats"] = c.Chats
	}

	responses := make([]map[string]any, 0, len(c.Responses))
	for _, r := range c.Responses {
		rd := map[string]any{
			"name":    r.Name,
			"ruleset": r.Ruleset.Source(),
		}
		if r.HitRate != nil {
			rd["hit_rate"] = *r.HitRate
		}
		if r.Cooldown != nil {
			rd["cooldown"] = int64(*r.Cooldown / time.Second)
		}
		if r.Unskippable {
			rd["unskippable"] = true
		}
		switch r.Kind.Type {
		case KindNone:
		case KindText:
			rd["content"] = r.Kind.Content
		case KindRandomText:
			rd["content"] = r.Kind.Choices
		case KindImage:
			rd["path"] = r.Kind.Path
		case KindTextAndImage:
			rd["content"] = r.Kind.Content
			rd["path"] = r.Kind.Path
		}
		responses = append(responses, rd)
	}
	if len(responses) > 0 {
		doc["responses"] = responses
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
