package auth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadINI(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api_1.ini")
	content := "[TWITTER]\nCONSUMER_KEY = ck\nCONSUMER_SECRET = cs\nACCESS_TOKEN = at\nACCESS_TOKEN_SECRET = ats\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cred, err := LoadINI(path)
	require.NoError(t, err)
	assert.Equal(t, "api_1", cred.Name)
	assert.Equal(t, "ck", cred.ConsumerKey)
	assert.Equal(t, "cs", cred.ConsumerSecret)
	assert.Equal(t, "at", cred.AccessToken)
	assert.Equal(t, "ats", cred.AccessTokenSecret)
	assert.Equal(t, path, cred.Source)
}

func TestLoadINIMissingSection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.ini")
	require.NoError(t, os.WriteFile(path, []byte("[OTHER]\nA = b\n"), 0600))

	_, err := LoadINI(path)
	assert.ErrorContains(t, err, "missing [TWITTER] section")
}

func TestLoadINIFilesStopsOnFailure(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.ini")
	require.NoError(t, os.WriteFile(good, []byte("[TWITTER]\nBEARER_TOKEN = t\n"), 0600))

	creds, err := LoadINIFiles([]string{good})
	require.NoError(t, err)
	assert.Len(t, creds, 1)

	_, err = LoadINIFiles([]string{good, filepath.Join(dir, "missing.ini")})
	assert.Error(t, err)
}

func TestSaveINIRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.ini")
	in := &Credential{Name: "saved", ConsumerKey: "k", ConsumerSecret: "s"}

	require.NoError(t, SaveINI(path, in))
	out, err := LoadINI(path)
	require.NoError(t, err)
	assert.Equal(t, in.ConsumerKey, out.ConsumerKey)
	assert.Equal(t, in.ConsumerSecret, out.ConsumerSecret)
	assert.Empty(t, out.BearerToken)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}
