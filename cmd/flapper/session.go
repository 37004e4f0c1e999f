package main

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

const defaultServerURL = "http://localhost:8080"

// session is the terminal client's state, kept in ~/.flapper/session.json.
type session struct {
	BaseURL string `json:"base_url"`
	Token   string `json:"token,omitempty"`
}

func sessionPath() (string, error) {
	if dir := os.Getenv("FLAPPER_HOME"); dir != "" {
		return filepath.Join(dir, "session.json"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".flapper", "session.json"), nil
}

// loadSession returns an empty session when none has been saved yet.
func loadSession() (session, error) {
	path, err := sessionPath()
	if err != nil {
		return session{}, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return session{}, nil
	}
	if err != nil {
		return session{}, err
	}
	var s session
	if err := json.Unmarshal(data, &s); err != nil {
		return session{}, err
	}
	return s, nil
}

func saveSession(s session) error {
	path, err := sessionPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
