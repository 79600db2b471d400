package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"cloneguard-lab/internal/domain/models"
	"cloneguard-lab/internal/infrastructure/database/repository"
)

// referenceFile is the on-disk layout of a --reference seed file
type referenceFile struct {
	References []struct {
		Package    string   `yaml:"package"`
		Brand      string   `yaml:"brand"`
		Developer  string   `yaml:"developer"`
		IconPHash  string   `yaml:"icon_phash"`
		CertSHA256 []string `yaml:"cert_sha256"`
	} `yaml:"references"`
}

// fileReferences is an in-memory reference store loaded from YAML
type fileReferences struct {
	byPackage map[string]*models.Reference
	byBrand   map[string]*models.Reference
}

func loadReferences(path string) (*fileReferences, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read reference file: %w", err)
	}

	var f referenceFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse reference file: %w", err)
	}

	refs := &fileReferences{
		byPackage: make(map[string]*models.Reference, len(f.References)),
		byBrand:   make(map[string]*models.Reference),
	}
	for i, r := range f.References {
		if r.Package == "" {
			return nil, fmt.Errorf("reference %d: package is required", i)
		}
		ref := &models.Reference{
			PackageName: r.Package,
			Brand:       strings.ToLower(r.Brand),
			Developer:   r.Developer,
			IconPHash:   r.IconPHash,
			CertSHA256:  r.CertSHA256,
		}
		refs.byPackage[ref.PackageName] = ref
		if ref.Brand != "" {
			if _, taken := refs.byBrand[ref.Brand]; !taken {
				refs.byBrand[ref.Brand] = ref
			}
		}
	}
	return refs, nil
}

func (f *fileReferences) Get(ctx context.Context, packageName string) (*models.Reference, error) {
	if ref, ok := f.byPackage[packageName]; ok {
		return ref, nil
	}
	return nil, repository.ErrNotFound
}

// FindByBrand returns the first listed reference for brand
func (f *fileReferences) FindByBrand(ctx context.Context, brand string) (*models.Reference, error) {
	if ref, ok := f.byBrand[strings.ToLower(brand)]; ok {
		return ref, nil
	}
	return nil, repository.ErrNotFound
}
