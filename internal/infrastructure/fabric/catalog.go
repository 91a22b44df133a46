package fabric

import (
	"context"
	"net/http"
	"net/url"

	"github.com/zinrai/fabric-portal/internal/domain"
)

var (
	_ domain.ImageClient   = (*Imgapi)(nil)
	_ domain.PackageClient = (*Papi)(nil)
)

// Imgapi is the image service client.
type Imgapi struct {
	c *client
}

func NewImgapi(baseURL string, opts Options) *Imgapi {
	return &Imgapi{c: newClient("imgapi", baseURL, opts)}
}

func (i *Imgapi) ListImages(ctx context.Context) ([]domain.Image, error) {
	var images []domain.Image
	err := i.c.do(ctx, http.MethodGet, "/images", nil, nil, &images)
	return images, err
}

func (i *Imgapi) GetImage(ctx context.Context, uuid string) (*domain.Image, error) {
	var image domain.Image
	if err := i.c.do(ctx, http.MethodGet, "/images/"+url.PathEscape(uuid), nil, nil, &image); err != nil {
		return nil, err
	}
	return &image, nil
}

// Papi is the package (instance size) service client.
type Papi struct {
	c *client
}

func NewPapi(baseURL string, opts Options) *Papi {
	return &Papi{c: newClient("papi", baseURL, opts)}
}

func (p *Papi) ListPackages(ctx context.Context) ([]domain.Package, error) {
	var packages []domain.Package
	err := p.c.do(ctx, http.MethodGet, "/packages", nil, nil, &packages)
	return packages, err
}

func (p *Papi) GetPackage(ctx context.Context, uuid string) (*domain.Package, error) {
	var pkg domain.Package
	if err := p.c.do(ctx, http.MethodGet, "/packages/"+url.PathEscape(uuid), nil, nil, &pkg); err != nil {
		return nil, err
	}
	return &pkg, nil
}
