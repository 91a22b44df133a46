package usecase

import (
	"context"

	"github.com/pkg/errors"

	"github.com/zinrai/fabric-portal/internal/domain"
)

// CatalogUseCase serves the read-only fabric listings.
type CatalogUseCase struct {
	networks domain.NetworkClient
	images   domain.ImageClient
	packages domain.PackageClient
}

func NewCatalogUseCase(networks domain.NetworkClient, images domain.ImageClient, packages domain.PackageClient) *CatalogUseCase {
	return &CatalogUseCase{networks: networks, images: images, packages: packages}
}

func (uc *CatalogUseCase) ListNetworks(ctx context.Context, ownerUUID string) ([]domain.Network, error) {
	networks, err := uc.networks.ListNetworks(ctx, ownerUUID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list networks")
	}
	return networks, nil
}

func (uc *CatalogUseCase) ListImages(ctx context.Context) ([]domain.Image, error) {
	images, err := uc.images.ListImages(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list images")
	}
	return images, nil
}

func (uc *CatalogUseCase) GetImage(ctx context.Context, uuid string) (*domain.Image, error) {
	return uc.images.GetImage(ctx, uuid)
}

// ListPackages returns the active packages only.
func (uc *CatalogUseCase) ListPackages(ctx context.Context) ([]domain.Package, error) {
	packages, err := uc.packages.ListPackages(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list packages")
	}
	active := make([]domain.Package, 0, len(packages))
	for _, p := range packages {
		if p.Active {
			active = append(active, p)
		}
	}
	return active, nil
}

func (uc *CatalogUseCase) GetPackage(ctx context.Context, uuid string) (*domain.Package, error) {
	return uc.packages.GetPackage(ctx, uuid)
}
