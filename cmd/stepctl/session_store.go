package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"stepleague/internal/client"
)

type storedSession struct {
	BaseURL string `json:"base_url"`
	Token   string `json:"token"`
}

func sessionFile() string {
	if p := os.Getenv("STEPCTL_SESSION"); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "stepctl", "session.json")
}

func saveSession(path string, s storedSession) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

func loadSession(path string) (*client.Session, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, errors.New("not signed in; run stepctl login first")
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	var s storedSession
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("corrupt session file %s: %w", path, err)
	}
	if s.Token == "" {
		return nil, errors.New("not signed in; run stepctl login first")
	}
	return client.NewSession(s.BaseURL, s.Token, nil), nil
}
