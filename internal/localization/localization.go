// Package localization loads notification texts from JSON catalogs, one file
// per language code (es.json, en.json...).
package localization

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// DefaultLanguage is used when the requested language or key is missing.
const DefaultLanguage = "es"

// Localizer manages the translations for the application.
type Localizer struct {
	translations map[string]map[string]string
	mu           sync.RWMutex
}

// NewLocalizer loads every *.json catalog found in path.
func NewLocalizer(path string) (*Localizer, error) {
	l := &Localizer{
		translations: make(map[string]map[string]string),
	}

	files, err := os.ReadDir(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read localization directory")
	}

	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}

		lang := strings.TrimSuffix(file.Name(), ".json")
		data, err := os.ReadFile(filepath.Join(path, file.Name()))
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read localization file %s", file.Name())
		}

		var translations map[string]string
		if err := json.Unmarshal(data, &translations); err != nil {
			return nil, errors.Wrapf(err, "failed to parse localization file %s", file.Name())
		}

		l.translations[lang] = translations
	}

	return l, nil
}

// GetString returns the text for key in lang, then in DefaultLanguage, then the key itself.
func (l *Localizer) GetString(lang, key string) string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if value, ok := l.translations[lang][key]; ok {
		return value
	}
	if value, ok := l.translations[DefaultLanguage][key]; ok {
		return value
	}
	return key
}

// Render is GetString with {{name}} placeholders replaced from vars.
func (l *Localizer) Render(lang, key string, vars map[string]string) string {
	text := l.GetString(lang, key)
	for k, v := range vars {
		text = strings.ReplaceAll(text, "{{"+k+"}}", v)
	}
	return text
}

// Add registers or overrides a single translation.
func (l *Localizer) Add(lang, key, value string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.translations[lang] == nil {
		l.translations[lang] = make(map[string]string)
	}
	l.translations[lang][key] = value
}
