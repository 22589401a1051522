// Package locale looks up bot strings by dotted key, e.g. "bot.edit_issue.help".
package locale

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed catalog/*.yml
var catalogFS embed.FS

// Catalog holds messages of every bundled language.
type Catalog struct {
	def      string
	tags     []language.Tag
	matcher  language.Matcher
	messages map[string]map[string]string
}

// Load reads the bundled catalogs. defaultLang is used for unknown languages and missing keys.
func Load(defaultLang string) (*Catalog, error) {
	if defaultLang == "" {
		defaultLang = "en"
	}
	files, err := fs.Glob(catalogFS, "catalog/*.yml")
	if err != nil {
		return nil, fmt.Errorf("locale: list catalogs: %w", err)
	}
	c := &Catalog{messages: make(map[string]map[string]string)}
	for _, name := range files {
		raw, err := catalogFS.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("locale: read %s: %w", name, err)
		}
		lang := strings.TrimSuffix(path.Base(name), path.Ext(name))
		msgs, err := parse(raw)
		if err != nil {
			return nil, fmt.Errorf("locale: parse %s: %w", name, err)
		}
		c.messages[lang] = msgs
	}
	if _, ok := c.messages[defaultLang]; !ok {
		return nil, fmt.Errorf("locale: no catalog for default language %q", defaultLang)
	}

	c.def = defaultLang
	c.tags = []language.Tag{language.Make(defaultLang)}
	for lang := range c.messages {
		if lang != defaultLang {
			c.tags = append(c.tags, language.Make(lang))
		}
	}
	c.matcher = language.NewMatcher(c.tags)
	return c, nil
}

func parse(raw []byte) (map[string]string, error) {
	var tree map[string]any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return nil, err
	}
	out := make(map[string]string)
	flatten("", tree, out)
	return out, nil
}

func flatten(prefix string, node map[string]any, out map[string]string) {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			flatten(key, val, out)
		case string:
			out[key] = val
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}

// Default returns the fallback language.
func (c *Catalog) Default() string {
	return c.def
}

// Match maps a client language code such as "ru-RU" to a bundled language.
func (c *Catalog) Match(code string) string {
	if code == "" {
		return c.def
	}
	_, idx, conf := c.matcher.Match(language.Make(code))
	if conf == language.No {
		return c.def
	}
	base, _ := c.tags[idx].Base()
	if _, ok := c.messages[base.String()]; ok {
		return base.String()
	}
	return c.tags[idx].String()
}

// T returns the message for key, formatted with args when given.
// Missing keys fall back to the default language, then to the key itself.
func (c *Catalog) T(lang, key string, args ...any) string {
	msg, ok := c.messages[lang][key]
	if !ok {
		msg, ok = c.messages[c.def][key]
	}
	if !ok {
		return key
	}
	if len(args) > 0 {
		return fmt.Sprintf(msg, args...)
	}
	return msg
}
