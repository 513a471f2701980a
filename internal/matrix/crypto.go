// ABOUTME: End-to-end encryption for the Matrix bridge using mautrix cryptohelper
// ABOUTME: Resets the crypto store when a fresh login changed the device ID

package matrix

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/crypto/cryptohelper"
)

// Encryption owns the crypto helper attached to a client.
type Encryption struct {
	helper *cryptohelper.CryptoHelper
}

// EnableEncryption attaches a crypto helper backed by a SQLite store in
// dataDir to client. With a recovery key the device is also cross-signed;
// a failed verification is logged and encryption stays on.
func EnableEncryption(ctx context.Context, client *mautrix.Client, recoveryKey, dataDir string, logger *slog.Logger) (*Encryption, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	userID := client.UserID.String()
	dbPath := filepath.Join(dataDir, "responder-crypto-"+slugify(userID)+".db")
	logger = logger.With("component", "matrix-crypto")

	stale, err := storedDeviceDiffers(dbPath, client.DeviceID.String())
	if err != nil {
		logger.Debug("could not read stored device ID", "error", err)
	}
	if stale {
		logger.Warn("device ID changed since last run, resetting crypto store", "db", dbPath)
		if err := removeDatabase(dbPath); err != nil {
			return nil, err
		}
	}

	helper, err := cryptohelper.NewCryptoHelper(client, storeKey(userID), dbPath)
	if err != nil {
		return nil, fmt.Errorf("creating crypto helper: %w", err)
	}
	if err := helper.Init(ctx); err != nil {
		return nil, fmt.Errorf("initializing crypto helper: %w", err)
	}
	client.Crypto = helper

	if recoveryKey == "" {
		logger.Info("encryption enabled without cross-signing")
		return &Encryption{helper: helper}, nil
	}

	if machine := helper.Machine(); machine == nil {
		logger.Warn("crypto machine not initialized, skipping recovery key")
	} else if err := machine.VerifyWithRecoveryKey(ctx, recoveryKey); err != nil {
		logger.Warn("recovery key verification failed", "error", err)
	} else {
		logger.Info("encryption enabled with cross-signing")
	}
	return &Encryption{helper: helper}, nil
}

// Close releases the crypto store.
func (e *Encryption) Close() error {
	if e == nil || e.helper == nil {
		return nil
	}
	return e.helper.Close()
}

// storedDeviceDiffers reports whether the crypto store at dbPath belongs to a
// device other than deviceID. A missing store or account never differs.
func storedDeviceDiffers(dbPath, deviceID string) (bool, error) {
	if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return false, err
	}
	defer db.Close()

	var stored string
	err = db.QueryRow("SELECT device_id FROM crypto_account LIMIT 1").Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return stored != deviceID, nil
}

func removeDatabase(dbPath string) error {
	if err := os.Remove(dbPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing crypto database: %w", err)
	}
	_ = os.Remove(dbPath + "-wal")
	_ = os.Remove(dbPath + "-shm")
	return nil
}

// slugify turns "@bot:example.org" into "bot_example.org".
func slugify(userID string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == ':':
			return '_'
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return -1
		}
	}, strings.TrimPrefix(userID, "@"))
}

// storeKey derives the pickle key for the crypto store from the user ID.
func storeKey(userID string) []byte {
	sum := sha256.Sum256([]byte("coven-responder-crypto:" + userID))
	return sum[:]
}
