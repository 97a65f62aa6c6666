package node

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/loomnet/loom/types/key"
)

// LoadOrCreateKey reads the node's private key from path, generating and
// writing a fresh one if the file does not exist yet.
func LoadOrCreateKey(path string) (key.NodePrivate, error) {
	b, err := os.ReadFile(path)
	if err == nil {
		priv, err := key.UnmarshalPrivate(strings.TrimSpace(string(b)))
		if err != nil {
			return key.NodePrivate{}, fmt.Errorf("could not parse key file %s: %w", path, err)
		}

		return *priv, nil
	}

	if !errors.Is(err, fs.ErrNotExist) {
		return key.NodePrivate{}, fmt.Errorf("could not read key file %s: %w", path, err)
	}

	priv := key.NewNode()

	if err := os.WriteFile(path, []byte(priv.Marshal()+"\n"), 0o600); err != nil {
		return key.NodePrivate{}, fmt.Errorf("could not write key file %s: %w", path, err)
	}

	slog.Info("node: generated new key", "path", path, "key", priv.Public().Debug())

	return priv, nil
}
