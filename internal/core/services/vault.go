package services

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/opspanel/backend/internal/domain"
	"github.com/opspanel/backend/internal/infrastructure/remote"
	"github.com/opspanel/backend/pkg/utils/crypto"
)

// Vault seals credential fields bound to their tenant. Plaintext only
// exists inside the call that needs it.
type Vault struct {
	cipher *crypto.Cipher
}

func NewVault(cipher *crypto.Cipher) *Vault {
	return &Vault{cipher: cipher}
}

func tenantAD(tenantID uint) string {
	return "tenant:" + strconv.FormatUint(uint64(tenantID), 10)
}

func (v *Vault) Seal(tenantID uint, plain string) (string, error) {
	sealed, err := v.cipher.Seal(plain, tenantAD(tenantID))
	if err != nil {
		return "", errors.Mark(ErrEncryptionFailed, domain.ErrConfiguration)
	}
	return sealed, nil
}

func (v *Vault) Open(tenantID uint, sealed string) (string, error) {
	plain, err := v.cipher.Open(sealed, tenantAD(tenantID))
	if err != nil {
		return "", errors.Mark(ErrDecryptionFailed, domain.ErrTenantScope)
	}
	return plain, nil
}

type authDataPayload struct {
	User     string `json:"user"`
	Password string `json:"password,omitempty"`
	SSHKey   string `json:"ssh_key,omitempty"`
}

func (v *Vault) SealHostAuth(tenantID uint, user, password, sshKey string) (string, error) {
	raw, err := json.Marshal(authDataPayload{User: user, Password: password, SSHKey: sshKey})
	if err != nil {
		return "", err
	}
	return v.Seal(tenantID, string(raw))
}

// SSHConfig opens a host's auth data into a client configuration.
func (v *Vault) SSHConfig(host *domain.Host, timeout time.Duration) (remote.SSHConfig, error) {
	plain, err := v.Open(host.TenantID, host.AuthData)
	if err != nil {
		return remote.SSHConfig{}, err
	}
	var auth authDataPayload
	if err := json.Unmarshal([]byte(plain), &auth); err != nil {
		return remote.SSHConfig{}, errors.Wrap(err, "failed to parse auth data")
	}
	return remote.SSHConfig{
		Host:       host.Address,
		Port:       host.SSHPort,
		User:       auth.User,
		Password:   auth.Password,
		PrivateKey: auth.SSHKey,
		Timeout:    timeout,
		MaxRetries: 1,
	}, nil
}
