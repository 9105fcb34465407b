package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/evidence-vault/internal/core/domain"
	"github.com/kirillkom/evidence-vault/internal/core/ports"
)

type VaultUseCase struct {
	store ports.ObjectStore
}

func NewVaultUseCase(store ports.ObjectStore) *VaultUseCase {
	return &VaultUseCase{store: store}
}

func (uc *VaultUseCase) List(ctx context.Context) ([]domain.Vault, error) {
	vaults, err := uc.store.ListVaults(ctx)
	if err != nil {
		return nil, fmt.Errorf("list vaults: %w", err)
	}
	return vaults, nil
}

func (uc *VaultUseCase) Create(ctx context.Context, name, description string) (*domain.Vault, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "create vault", errors.New("name is required"))
	}
	vault, err := uc.store.CreateVault(ctx, name, strings.TrimSpace(description))
	if err != nil {
		return nil, fmt.Errorf("create vault: %w", err)
	}
	return vault, nil
}
