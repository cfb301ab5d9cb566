// Package fsjson fournit les primitives de persistance sur disque:
// documents JSON lus avec valeur par défaut, écrits de façon atomique,
// et le fichier credential texte à deux lignes.
package fsjson

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"chzzk-archiver/internal/domain"
)

// ReadJSON lit un document JSON. Si le fichier n'existe pas, renvoie def
// avec exists=false et sans erreur.
func ReadJSON[T any](path string, def T) (v T, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return def, false, nil
		}
		return def, false, err
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return def, true, fmt.Errorf("decode %s: %w", path, err)
	}
	return v, true, nil
}

// WriteJSON écrit un document JSON de façon atomique (fichier temporaire
// puis rename), en créant les répertoires parents au besoin.
func WriteJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(path, append(b, '\n'))
}

// ReadCredential lit le fichier cookie: NID_AUT sur la première ligne,
// NID_SES sur la seconde. Fichier absent ou incomplet: credential vide.
func ReadCredential(path string) (domain.Credential, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.Credential{}, nil
		}
		return domain.Credential{}, err
	}
	lines := strings.Split(strings.ReplaceAll(string(b), "\r\n", "\n"), "\n")
	if len(lines) < 2 || lines[0] == "" || lines[1] == "" {
		return domain.Credential{}, nil
	}
	return domain.Credential{Auth: strings.TrimSpace(lines[0]), Session: strings.TrimSpace(lines[1])}, nil
}

// WriteCredential écrit le fichier cookie à deux lignes. Une paire
// incomplète est écrite comme fichier vide, pas comme paire partielle.
func WriteCredential(path string, cred domain.Credential) error {
	var data string
	if cred.Complete() {
		data = cred.Auth + "\n" + cred.Session + "\n"
	}
	return writeAtomic(path, []byte(data))
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
