package services

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/opspanel/backend/internal/core/ports"
	"github.com/opspanel/backend/internal/domain"
	"github.com/opspanel/backend/internal/infrastructure/logger"
)

type hostService struct {
	repo   ports.HostRepository
	vault  *Vault
	logger *logger.Logger
}

func NewHostService(repo ports.HostRepository, vault *Vault, logger *logger.Logger) ports.HostService {
	return &hostService{repo: repo, vault: vault, logger: logger}
}

func (s *hostService) validateInput(input ports.CreateHostInput) error {
	if strings.TrimSpace(input.Name) == "" {
		return errors.Wrap(ErrHostInvalidInput, "name is required")
	}
	if strings.TrimSpace(input.Address) == "" {
		return errors.Wrap(ErrHostInvalidInput, "address is required")
	}
	if input.SSHPort != 0 && !validatePort(input.SSHPort) {
		return errors.Wrapf(ErrHostInvalidInput, "invalid ssh port %d", input.SSHPort)
	}
	if input.User == "" {
		return errors.Wrap(ErrHostInvalidInput, "user is required")
	}
	if input.Password == "" && input.SSHKey == "" {
		return errors.Wrap(ErrHostInvalidInput, "password or ssh key is required")
	}
	return nil
}

func (s *hostService) CreateHost(ctx context.Context, tenantID uint, input ports.CreateHostInput) (*domain.Host, error) {
	if err := s.validateInput(input); err != nil {
		return nil, err
	}

	authData, err := s.vault.SealHostAuth(tenantID, input.User, input.Password, input.SSHKey)
	if err != nil {
		s.logger.Errorw("failed to encrypt auth data", "tenant_id", tenantID, "error", err)
		return nil, err
	}

	sshPort := input.SSHPort
	if sshPort == 0 {
		sshPort = 22
	}
	host := &domain.Host{
		TenantID: tenantID,
		Name:     strings.TrimSpace(input.Name),
		Address:  input.Address,
		SSHPort:  sshPort,
		Status:   domain.HostStatusUnknown,
		AuthData: authData,
	}
	if err := s.repo.Create(ctx, host); err != nil {
		return nil, err
	}
	s.logger.Infow("host created", "tenant_id", tenantID, "id", host.ID, "address", host.Address)
	return host, nil
}

func (s *hostService) GetHost(ctx context.Context, tenantID, id uint) (*domain.Host, error) {
	return s.repo.GetByID(ctx, tenantID, id)
}

func (s *hostService) ListHosts(ctx context.Context, tenantID uint, page ports.PageRequest) ([]domain.Host, int64, error) {
	return s.repo.List(ctx, tenantID, page)
}

func (s *hostService) DeleteHost(ctx context.Context, tenantID, id uint) error {
	if err := s.repo.Delete(ctx, tenantID, id); err != nil {
		return err
	}
	s.logger.Infow("host deleted", "tenant_id", tenantID, "id", id)
	return nil
}
