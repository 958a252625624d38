package events

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"os"
	"sync"

	"golang.org/x/crypto/pbkdf2"

	"github.com/pulsekit/pulsekit-go/internal/types"
)

const (
	// spoolVersion is the current spool file format version.
	spoolVersion = 1

	// nonceLength is the AES-GCM nonce length (96 bits).
	nonceLength = 12

	// keyLength is the AES-256 key length.
	keyLength = 32

	// pbkdf2Iterations is the PBKDF2 iteration count for key derivation.
	pbkdf2Iterations = 100000

	// spoolSalt is the static salt for key derivation.
	spoolSalt = "PulseKit-v1-spool"

	// maxSpooledEvents bounds how many unsent events survive on disk.
	maxSpooledEvents = 1000
)

// spoolFile is the on-disk envelope: base64 nonce and ciphertext plus a
// format version.
type spoolFile struct {
	Nonce   string `json:"nonce"`
	Data    string `json:"data"`
	Version int    `json:"version"`
}

// Spool persists unsent event batches encrypted at rest with AES-256-GCM.
// The key is derived from the API key, so a spool written by one project
// cannot be read by another.
type Spool struct {
	path   string
	aead   cipher.AEAD
	logger types.Logger
	mu     sync.Mutex
}

// NewSpool creates a spool at path with a key derived from apiKey.
func NewSpool(path, apiKey string, logger types.Logger) (*Spool, error) {
	if apiKey == "" {
		return nil, types.NewError(types.ErrSpoolError, "API key is required to derive the spool key")
	}
	key := pbkdf2.Key([]byte(apiKey), []byte(spoolSalt), pbkdf2Iterations, keyLength, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, types.NewErrorWithCause(types.ErrSpoolError, "failed to initialize cipher", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, types.NewErrorWithCause(types.ErrSpoolError, "failed to initialize cipher", err)
	}
	if logger == nil {
		logger = &types.NullLogger{}
	}
	return &Spool{path: path, aead: aead, logger: logger}, nil
}

// Save appends msgs to the spooled set, keeping at most maxSpooledEvents of
// the newest events.
func (s *Spool) Save(msgs []Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, err := s.read()
	if err != nil {
		// A corrupt or unreadable spool is replaced rather than kept.
		s.logger.Warn("Discarding unreadable event spool", "error", err.Error())
		pending = nil
	}
	pending = append(pending, msgs...)
	if len(pending) > maxSpooledEvents {
		pending = pending[len(pending)-maxSpooledEvents:]
	}
	return s.write(pending)
}

// Load reads and removes all spooled events.
func (s *Spool) Load() ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, err := s.read()
	if err != nil {
		return nil, err
	}
	if pending == nil {
		return nil, nil
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return nil, types.NewErrorWithCause(types.ErrSpoolError, "failed to remove spool file", err)
	}
	return pending, nil
}

func (s *Spool) read() ([]Message, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewErrorWithCause(types.ErrSpoolError, "failed to read spool file", err)
	}

	var envelope spoolFile
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, types.NewErrorWithCause(types.ErrSpoolError, "malformed spool file", err)
	}
	if envelope.Version != spoolVersion {
		return nil, types.NewError(types.ErrSpoolError, "unsupported spool file version")
	}

	nonce, err := base64.StdEncoding.DecodeString(envelope.Nonce)
	if err != nil {
		return nil, types.NewErrorWithCause(types.ErrSpoolError, "malformed spool file", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(envelope.Data)
	if err != nil {
		return nil, types.NewErrorWithCause(types.ErrSpoolError, "malformed spool file", err)
	}

	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, types.NewErrorWithCause(types.ErrSpoolError, "failed to decrypt spool file", err)
	}

	var msgs []Message
	if err := json.Unmarshal(plaintext, &msgs); err != nil {
		return nil, types.NewErrorWithCause(types.ErrSpoolError, "malformed spool contents", err)
	}
	return msgs, nil
}

func (s *Spool) write(msgs []Message) error {
	plaintext, err := json.Marshal(msgs)
	if err != nil {
		return types.NewErrorWithCause(types.ErrSpoolError, "failed to encode spool contents", err)
	}

	nonce := make([]byte, nonceLength)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return types.NewErrorWithCause(types.ErrSpoolError, "failed to generate nonce", err)
	}
	ciphertext := s.aead.Seal(nil, nonce, plaintext, nil)

	envelope, err := json.Marshal(spoolFile{
		Nonce:   base64.StdEncoding.EncodeToString(nonce),
		Data:    base64.StdEncoding.EncodeToString(ciphertext),
		Version: spoolVersion,
	})
	if err != nil {
		return types.NewErrorWithCause(types.ErrSpoolError, "failed to encode spool file", err)
	}

	if err := os.WriteFile(s.path, envelope, 0o600); err != nil {
		return types.NewErrorWithCause(types.ErrSpoolError, "failed to write spool file", err)
	}
	return nil
}
