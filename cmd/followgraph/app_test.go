package main

import (
	"errors"
	"testing"

	"followgraph/pkg/auth"
	errs "followgraph/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithStoredSkipsShadowedNames(t *testing.T) {
	manager, store := auth.NewMockManager()
	require.NoError(t, store.Store(&auth.Credential{Name: "main", BearerToken: "stored"}))
	require.NoError(t, store.Store(&auth.Credential{Name: "spare", BearerToken: "stored"}))

	files := []*auth.Credential{{Name: "main", BearerToken: "file"}}
	creds, err := withStored(files, manager)
	require.NoError(t, err)

	require.Len(t, creds, 2)
	assert.Equal(t, "file", creds[0].BearerToken)
	assert.Equal(t, "spare", creds[1].Name)
}

func TestWithStoredFailsOnUnreadableStore(t *testing.T) {
	manager, store := auth.NewMockManager()
	store.ListError = errors.New("keyring locked")

	files := []*auth.Credential{{Name: "main", BearerToken: "file"}}
	creds, err := withStored(files, manager)
	require.Error(t, err)
	assert.Nil(t, creds)
	assert.True(t, errs.Is(err, errs.ErrorTypeConfig))
	assert.Contains(t, err.Error(), "keyring locked")
}
