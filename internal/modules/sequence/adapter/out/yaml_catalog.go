package out

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"studyrun/internal/modules/sequence/domain"
	sequenceout "studyrun/internal/modules/sequence/port/out"
)

type YAMLCatalogProvider struct {
	path string
}

// NewYAMLCatalogProvider reads the catalog from path; an empty path serves the
// built-in default catalog.
func NewYAMLCatalogProvider(path string) sequenceout.CatalogProvider {
	return &YAMLCatalogProvider{path: path}
}

type catalogFile struct {
	Terminal string                  `yaml:"terminal"`
	Devices  map[string][]string     `yaml:"devices"`
	Tasks    []domain.TaskDescriptor `yaml:"tasks"`
}

func (p *YAMLCatalogProvider) Catalog(_ context.Context) (domain.Catalog, error) {
	if p.path == "" {
		return domain.DefaultCatalog(), nil
	}
	raw, err := os.ReadFile(p.path)
	if err != nil {
		return domain.Catalog{}, fmt.Errorf("read catalog: %w", err)
	}
	file := catalogFile{}
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return domain.Catalog{}, fmt.Errorf("decode catalog: %w", err)
	}
	catalog := domain.Catalog{
		Tasks:    make(map[string]domain.TaskDescriptor, len(file.Tasks)),
		Devices:  make(map[domain.DeviceClass][]string, len(file.Devices)),
		Terminal: file.Terminal,
	}
	for _, task := range file.Tasks {
		if _, dup := catalog.Tasks[task.Code]; dup {
			return domain.Catalog{}, fmt.Errorf("catalog defines task %q twice", task.Code)
		}
		catalog.Tasks[task.Code] = task
	}
	for device, codes := range file.Devices {
		catalog.Devices[domain.ParseDeviceClass(device)] = codes
	}
	if err := catalog.Validate(); err != nil {
		return domain.Catalog{}, err
	}
	return catalog, nil
}
