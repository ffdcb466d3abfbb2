package localization_test

import (
	"os"
	"path/filepath"
	"schoolchat/backend/internal/localization"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalizer_BundledCatalogs(t *testing.T) {
	l, err := localization.NewLocalizer("locales")
	require.NoError(t, err)

	assert.Equal(t, "New message from Ana", l.Render("en", "new_message_title", map[string]string{"sender": "Ana"}))
	assert.Equal(t, "Nuevo mensaje de Ana", l.Render("es", "new_message_title", map[string]string{"sender": "Ana"}))
}

func TestLocalizer_Fallbacks(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "es.json"), []byte(`{"hello":"hola"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fr.json"), []byte(`{"bye":"salut"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0o644))

	l, err := localization.NewLocalizer(dir)
	require.NoError(t, err)

	assert.Equal(t, "salut", l.GetString("fr", "bye"))
	assert.Equal(t, "hola", l.GetString("fr", "hello"))
	assert.Equal(t, "hola", l.GetString("de", "hello"))
	assert.Equal(t, "missing_key", l.GetString("es", "missing_key"))

	l.Add("de", "hello", "hallo")
	assert.Equal(t, "hallo", l.GetString("de", "hello"))
}

func TestLocalizer_BadCatalog(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "es.json"), []byte(`{not json`), 0o644))

	_, err := localization.NewLocalizer(dir)
	assert.Error(t, err)

	_, err = localization.NewLocalizer(filepath.Join(dir, "nope"))
	assert.Error(t, err)
}
