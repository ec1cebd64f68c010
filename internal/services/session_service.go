package services

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// Session identifies one browser. Its ID keys the caller's workspaces.
type Session struct {
	ID       string    `json:"id"`
	IssuedAt time.Time `json:"iat"`
}

type SessionService struct {
	encryptionKey []byte
}

// NewSessionService seals sessions with key, which must be 32 bytes. An empty
// key generates an ephemeral one, so sessions do not survive a restart.
func NewSessionService(key string) (*SessionService, error) {
	if key == "" {
		newKey := make([]byte, 32)
		if _, err := io.ReadFull(rand.Reader, newKey); err != nil {
			return nil, fmt.Errorf("generate session key: %w", err)
		}
		return &SessionService{encryptionKey: newKey}, nil
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("session key must be 32 bytes, got %d", len(key))
	}
	return &SessionService{encryptionKey: []byte(key)}, nil
}

// NewSession returns a session with a fresh random id.
func (s *SessionService) NewSession() Session {
	return Session{ID: uuid.NewString(), IssuedAt: time.Now().UTC()}
}

// Seal serializes and encrypts a session into a cookie value.
func (s *SessionService) Seal(session Session) (string, error) {
	data, err := json.Marshal(session)
	if err != nil {
		return "", err
	}

	gcm, err := s.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, data, nil)
	return base64.URLEncoding.EncodeToString(ciphertext), nil
}

// Open decodes a cookie value back into the session it was sealed from.
func (s *SessionService) Open(sealed string) (*Session, error) {
	ciphertext, err := base64.URLEncoding.DecodeString(sealed)
	if err != nil {
		return nil, err
	}

	gcm, err := s.gcm()
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("malformed ciphertext")
	}

	nonce, ciphertext := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, err
	}

	var session Session
	if err := json.Unmarshal(plaintext, &session); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(session.ID); err != nil {
		return nil, fmt.Errorf("invalid session id: %w", err)
	}
	return &session, nil
}

func (s *SessionService) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.encryptionKey)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
