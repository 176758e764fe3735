package auth

import (
	"os"
	"time"
)

// Environment variables read by EnvironmentStore
const (
	EnvConsumerKey       = "FOLLOWGRAPH_CONSUMER_KEY"
	EnvConsumerSecret    = "FOLLOWGRAPH_CONSUMER_SECRET"
	EnvAccessToken       = "FOLLOWGRAPH_ACCESS_TOKEN"
	EnvAccessTokenSecret = "FOLLOWGRAPH_ACCESS_TOKEN_SECRET"
	EnvBearerToken       = "FOLLOWGRAPH_BEARER_TOKEN"
)

// EnvironmentStore exposes a single read-only credential named "env"
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(cred *Credential) error {
	return ErrStoreUnavailable
}

// Retrieve builds the credential from the environment. Any name matches.
func (e *EnvironmentStore) Retrieve(name string) (*Credential, error) {
	cred := &Credential{
		Name:              "env",
		ConsumerKey:       os.Getenv(EnvConsumerKey),
		ConsumerSecret:    os.Getenv(EnvConsumerSecret),
		AccessToken:       os.Getenv(EnvAccessToken),
		AccessTokenSecret: os.Getenv(EnvAccessTokenSecret),
		BearerToken:       os.Getenv(EnvBearerToken),
		Source:            "environment",
		LastModified:      time.Now(),
	}
	if cred.Validate() != nil {
		return nil, ErrCredentialsNotFound
	}
	return cred, nil
}

// List returns the environment credential when one is set
func (e *EnvironmentStore) List() ([]*Credential, error) {
	cred, err := e.Retrieve("")
	if err != nil {
		return []*Credential{}, nil
	}
	return []*Credential{cred}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(name string) error {
	return ErrStoreUnavailable
}

// Exists checks if environment credentials exist
func (e *EnvironmentStore) Exists(name string) bool {
	_, err := e.Retrieve(name)
	return err == nil
}
