package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/testflow/pkg/domain"
	"github.com/aretw0/testflow/pkg/ports"
)

// envelopeKey holds the ciphertext inside an otherwise empty variables map.
const envelopeKey = "__encrypted__"

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys is a list of old keys to try when decryption fails.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte
}

// encryptionMiddleware encrypts flow variables and report final variables at rest.
// The graph itself is stored in clear so other tools can still read it.
type encryptionMiddleware struct {
	ports.FlowRepository
	config EncryptionConfig
}

// NewEncryptionMiddleware creates a middleware that encrypts variables using AES-GCM.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	if len(config.ActiveKey) != 32 {
		panic("active key must be 32 bytes (AES-256)")
	}
	return func(next ports.FlowRepository) ports.FlowRepository {
		return &encryptionMiddleware{FlowRepository: next, config: config}
	}
}

func (m *encryptionMiddleware) CreateFlow(ctx context.Context, flow *domain.Flow) error {
	sealed := flow.Clone()
	if len(flow.Variables) > 0 {
		blob, err := m.seal(flow.Variables)
		if err != nil {
			return fmt.Errorf("failed to encrypt variables of flow %s: %w", flow.ID, err)
		}
		sealed.Variables = map[string]string{envelopeKey: blob}
	}
	return m.FlowRepository.CreateFlow(ctx, &sealed)
}

func (m *encryptionMiddleware) LoadFlow(ctx context.Context, flowID string) (*domain.Flow, error) {
	flow, err := m.FlowRepository.LoadFlow(ctx, flowID)
	if err != nil {
		return nil, err
	}
	if len(flow.Variables) == 0 {
		return flow, nil
	}
	blob, ok := flow.Variables[envelopeKey]
	if !ok {
		// Fail secure: plain variables mean the store was written without encryption.
		return nil, errors.New("flow variables are missing encrypted data envelope")
	}
	vars := map[string]string{}
	if err := m.open(blob, &vars); err != nil {
		return nil, fmt.Errorf("failed to decrypt variables of flow %s: %w", flowID, err)
	}
	flow.Variables = vars
	return flow, nil
}

func (m *encryptionMiddleware) SaveRunReport(ctx context.Context, flowID string, report *domain.RunReport) error {
	sealed := *report
	if len(report.FinalVariables) > 0 {
		blob, err := m.seal(report.FinalVariables)
		if err != nil {
			return fmt.Errorf("failed to encrypt report variables: %w", err)
		}
		sealed.FinalVariables = map[string]any{envelopeKey: blob}
	}
	return m.FlowRepository.SaveRunReport(ctx, flowID, &sealed)
}

func (m *encryptionMiddleware) ListRunReports(ctx context.Context, flowID string) ([]domain.RunReport, error) {
	reports, err := m.FlowRepository.ListRunReports(ctx, flowID)
	if err != nil {
		return nil, err
	}
	for i := range reports {
		blob, ok := reports[i].FinalVariables[envelopeKey].(string)
		if !ok {
			continue
		}
		vars := map[string]any{}
		if err := m.open(blob, &vars); err != nil {
			return nil, fmt.Errorf("failed to decrypt report variables: %w", err)
		}
		reports[i].FinalVariables = vars
	}
	return reports, nil
}

func (m *encryptionMiddleware) seal(v any) (string, error) {
	plainText, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	ciphertext, err := encrypt(plainText, m.config.ActiveKey)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (m *encryptionMiddleware) open(blob string, v any) error {
	ciphertext, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}
	plainText, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return err
	}
	return json.Unmarshal(plainText, v)
}

// Helpers

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}
	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, sealed, nil)
}
