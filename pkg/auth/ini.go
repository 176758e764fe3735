package auth

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-ini/ini"
)

// INISection is the section holding API keys in credential files
const INISection = "TWITTER"

// LoadINI reads one credential from an INI file with a [TWITTER] section
// holding CONSUMER_KEY, CONSUMER_SECRET, ACCESS_TOKEN and ACCESS_TOKEN_SECRET
// (BEARER_TOKEN is also accepted). The credential is named after the file.
func LoadINI(path string) (*Credential, error) {
	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credential file %s: %w", path, err)
	}

	section, err := file.GetSection(INISection)
	if err != nil {
		return nil, fmt.Errorf("credential file %s: missing [%s] section", path, INISection)
	}

	cred := &Credential{
		Name:              strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		ConsumerKey:       section.Key("CONSUMER_KEY").String(),
		ConsumerSecret:    section.Key("CONSUMER_SECRET").String(),
		AccessToken:       section.Key("ACCESS_TOKEN").String(),
		AccessTokenSecret: section.Key("ACCESS_TOKEN_SECRET").String(),
		BearerToken:       section.Key("BEARER_TOKEN").String(),
		Source:            path,
	}
	if err := cred.Validate(); err != nil {
		return nil, fmt.Errorf("credential file %s: %w", path, err)
	}
	return cred, nil
}

// LoadINIFiles reads every file in order. The first failure aborts.
func LoadINIFiles(paths []string) ([]*Credential, error) {
	creds := make([]*Credential, 0, len(paths))
	for _, p := range paths {
		cred, err := LoadINI(p)
		if err != nil {
			return nil, err
		}
		creds = append(creds, cred)
	}
	return creds, nil
}

// SaveINI writes cred in the format LoadINI reads
func SaveINI(path string, cred *Credential) error {
	file := ini.Empty()
	section, err := file.NewSection(INISection)
	if err != nil {
		return err
	}
	pairs := [][2]string{
		{"CONSUMER_KEY", cred.ConsumerKey},
		{"CONSUMER_SECRET", cred.ConsumerSecret},
		{"ACCESS_TOKEN", cred.AccessToken},
		{"ACCESS_TOKEN_SECRET", cred.AccessTokenSecret},
		{"BEARER_TOKEN", cred.BearerToken},
	}
	for _, kv := range pairs {
		if kv[1] == "" {
			continue
		}
		if _, err := section.NewKey(kv[0], kv[1]); err != nil {
			return err
		}
	}

	var buf bytes.Buffer
	if _, err := file.WriteTo(&buf); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write credential file: %w", err)
	}
	return nil
}
