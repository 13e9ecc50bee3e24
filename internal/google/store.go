package google

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CredentialStore loads and persists the credential.
type CredentialStore interface {
	// Load returns the stored credential, or false when there is none or
	// it cannot be parsed. It never fails.
	Load() (*Credential, bool)
	// Persist replaces the stored credential atomically.
	Persist(*Credential) error
}

// FileStore keeps the credential in a single JSON file.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the credential file location.
func (s *FileStore) Path() string {
	return s.path
}

// authorizedUser is Google's authorized-user credential format, the one
// written by google-auth's Credentials.to_json.
type authorizedUser struct {
	Type         string    `json:"type,omitempty"`
	Token        string    `json:"token,omitempty"`
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenURI     string    `json:"token_uri,omitempty"`
	ClientID     string    `json:"client_id,omitempty"`
	ClientSecret string    `json:"client_secret,omitempty"`
	Scopes       scopeList `json:"scopes,omitempty"`
	Expiry       string    `json:"expiry,omitempty"`
}

// scopeList accepts both a JSON array and a space separated string.
type scopeList []string

func (l *scopeList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = list
		return nil
	}
	var joined string
	if err := json.Unmarshal(data, &joined); err != nil {
		return err
	}
	*l = strings.Fields(joined)
	return nil
}

// Load implements CredentialStore.
func (s *FileStore) Load() (*Credential, bool) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, false
	}

	var rec authorizedUser
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, false
	}

	token := rec.Token
	if token == "" {
		token = rec.AccessToken
	}
	if token == "" && rec.RefreshToken == "" {
		return nil, false
	}

	var expiry time.Time
	if rec.Expiry != "" {
		expiry, err = time.Parse(time.RFC3339, rec.Expiry)
		if err != nil {
			return nil, false
		}
	}

	return &Credential{
		AccessToken:  token,
		RefreshToken: rec.RefreshToken,
		Expiry:       expiry,
		Scopes:       []string(rec.Scopes),
		ClientID:     rec.ClientID,
		ClientSecret: rec.ClientSecret,
		TokenURI:     rec.TokenURI,
	}, true
}

// Persist implements CredentialStore. The file is written to a temporary
// sibling and renamed into place, so readers never see a partial file.
func (s *FileStore) Persist(c *Credential) error {
	if c == nil {
		return fmt.Errorf("cannot persist nil credential")
	}

	rec := authorizedUser{
		Type:         "authorized_user",
		Token:        c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenURI:     c.TokenURI,
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Scopes:       scopeList(c.Scopes),
	}
	if !c.Expiry.IsZero() {
		rec.Expiry = c.Expiry.UTC().Format(time.RFC3339)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create credential directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary credential file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write credential: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync credential: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close credential file: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		return fmt.Errorf("failed to set credential file permissions: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace credential file: %w", err)
	}
	committed = true
	return nil
}
