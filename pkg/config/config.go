package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/pelletier/go-toml/v2"

	"github.com/docpull/docpull/pkg/match"
	"github.com/docpull/docpull/pkg/remote"
)

// ManifestFileName is the project manifest filename.
const ManifestFileName = "docpull.toml"

type Config struct {
	Project ProjectConfig           `toml:"project"`
	Sources map[string]SourceConfig `toml:"sources,omitempty"`
}

type ProjectConfig struct {
	Name string `toml:"name"`

	// StripPrefixes are structural path prefixes (e.g. "content") removed
	// when a destination path is turned into a site URL.
	StripPrefixes []string `toml:"strip_prefixes,omitempty"`
}

// SourceConfig describes one remote tree to import. Exactly one of Repo or
// LocalDir is set: Repo points at a hosted repository, LocalDir at a plain
// directory for offline work.
type SourceConfig struct {
	Repo     string `toml:"repo,omitempty"`
	Ref      string `toml:"ref,omitempty"`
	LocalDir string `toml:"local_dir,omitempty"`

	// Name is the display name used in reports; the source's table key is
	// used when empty.
	Name string `toml:"name,omitempty"`

	// StateKey overrides the key this source is recorded under in the
	// sync state file.
	StateKey string `toml:"state_key,omitempty"`

	// BasePath is the destination directory used when no rules are
	// configured ("import everything" mode).
	BasePath string `toml:"base_path,omitempty"`

	// AssetsDir is where downloaded media lands; AssetPublicPath is the
	// URL prefix documents reference it by.
	AssetsDir       string   `toml:"assets_dir,omitempty"`
	AssetPublicPath string   `toml:"asset_public_path,omitempty"`
	AssetExtensions []string `toml:"asset_extensions,omitempty"`

	// Transforms apply to every file of this source, before any
	// rule-scoped transforms.
	Transforms []string `toml:"transforms,omitempty"`

	Rules []RuleConfig `toml:"rules,omitempty"`

	// LinkRules are mapping rules for the link resolver. Global ones
	// rewrite paths before the corpus lookup; the rest only apply to
	// links the lookup could not resolve.
	LinkRules []LinkRuleConfig `toml:"link_rules,omitempty"`
}

type RuleConfig struct {
	Pattern    string            `toml:"pattern"`
	BasePath   string            `toml:"base_path"`
	Renames    map[string]string `toml:"renames,omitempty"`
	Transforms []string          `toml:"transforms,omitempty"`
}

type LinkRuleConfig struct {
	Global bool `toml:"global,omitempty"`

	// Match is a literal substring unless Regex is set, in which case it
	// is a regular expression and Replace may use $1-style captures.
	Match   string `toml:"match"`
	Regex   bool   `toml:"regex,omitempty"`
	Replace string `toml:"replace"`

	// RestrictBase limits the rule to links found in files whose matched
	// rule has this base path.
	RestrictBase string `toml:"restrict_base,omitempty"`
}

func UnmarshalConfig(data []byte) (*Config, error) {
	cfg := &Config{}
	err := toml.Unmarshal(data, cfg)

	return cfg, err
}

func (c *Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}

func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return UnmarshalConfig(data)
}

func SaveFile(path string, cfg *Config) error {
	data, err := cfg.Marshal()
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// Validate checks the whole manifest. Sources are validated individually so
// the error names the offending source.
func (c *Config) Validate() error {
	if err := c.Project.Validate(); err != nil {
		return err
	}
	for id, src := range c.Sources {
		if err := src.Validate(); err != nil {
			return fmt.Errorf("source %q: %w", id, err)
		}
	}
	return nil
}

func (p ProjectConfig) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Name, validation.Required),
		validation.Field(&p.StripPrefixes, validation.Each(validation.By(relativePath))),
	)
}

func (s SourceConfig) Validate() error {
	if s.Repo == "" && s.LocalDir == "" {
		return fmt.Errorf("either repo or local_dir must be set")
	}
	if s.Repo != "" && s.LocalDir != "" {
		return fmt.Errorf("repo and local_dir are mutually exclusive")
	}
	if s.Repo != "" {
		if _, err := remote.ParseRepo(s.Repo); err != nil {
			return err
		}
		if !remote.ValidRef(s.Ref) {
			return fmt.Errorf("ref %q is empty or contains unsafe characters", s.Ref)
		}
	}

	if err := validation.ValidateStruct(&s,
		validation.Field(&s.BasePath, validation.Required.When(len(s.Rules) == 0), validation.By(relativePath)),
		validation.Field(&s.AssetsDir, validation.By(relativePath)),
		validation.Field(&s.AssetExtensions, validation.Each(validation.By(dotExtension))),
	); err != nil {
		return err
	}

	for i, rule := range s.Rules {
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
	}
	for i, lr := range s.LinkRules {
		if err := lr.Validate(); err != nil {
			return fmt.Errorf("link rule %d: %w", i, err)
		}
	}
	return nil
}

func (r RuleConfig) Validate() error {
	if err := validation.ValidateStruct(&r,
		validation.Field(&r.Pattern, validation.Required),
		validation.Field(&r.BasePath, validation.Required, validation.By(relativePath)),
	); err != nil {
		return err
	}
	if !match.ValidPattern(r.Pattern) {
		return fmt.Errorf("pattern %q is not a valid glob", r.Pattern)
	}
	return nil
}

func (l LinkRuleConfig) Validate() error {
	if err := validation.ValidateStruct(&l,
		validation.Field(&l.Match, validation.Required),
	); err != nil {
		return err
	}
	if l.Regex {
		if _, err := regexp.Compile(l.Match); err != nil {
			return fmt.Errorf("match pattern: %w", err)
		}
	}
	return nil
}

// relativePath rejects directory values that could escape the project
// root. Escapes are configuration errors, fatal before any network work.
func relativePath(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if filepath.IsAbs(s) || strings.HasPrefix(s, "/") {
		return fmt.Errorf("must be relative to the project root")
	}
	for _, seg := range strings.Split(filepath.ToSlash(s), "/") {
		if seg == ".." {
			return fmt.Errorf("must not climb out of the project root")
		}
	}
	return nil
}

func dotExtension(value any) error {
	s, _ := value.(string)
	if !strings.HasPrefix(s, ".") || len(s) < 2 {
		return fmt.Errorf("extension %q must start with a dot", s)
	}
	return nil
}

// SourceName returns the display name for a source id.
func (c *Config) SourceName(id string) string {
	if src, ok := c.Sources[id]; ok && src.Name != "" {
		return src.Name
	}
	return id
}

// StateKeyFor returns the key a source is recorded under in the sync state
// file.
func (c *Config) StateKeyFor(id string) string {
	if src, ok := c.Sources[id]; ok && src.StateKey != "" {
		return src.StateKey
	}
	return id
}

// MatchRules converts the source's rule configs into matcher rules.
func (s SourceConfig) MatchRules() []match.Rule {
	rules := make([]match.Rule, 0, len(s.Rules))
	for _, r := range s.Rules {
		rules = append(rules, match.Rule{
			Pattern:    r.Pattern,
			BasePath:   r.BasePath,
			Renames:    r.Renames,
			Transforms: r.Transforms,
		})
	}
	return rules
}
