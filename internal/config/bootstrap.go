package config

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/broker-authz/go-core/pkg/types"
)

// bindingFile is the on-disk shape of a bootstrap ACL file
type bindingFile struct {
	Bindings []bindingSpec `yaml:"bindings"`
}

// bindingSpec flattens one binding for declarative files. Principals use the
// "Type:name" form; enum fields accept any case.
type bindingSpec struct {
	ResourceType string `yaml:"resourceType"`
	PatternType  string `yaml:"patternType"`
	Name         string `yaml:"name"`
	Principal    string `yaml:"principal"`
	Host         string `yaml:"host"`
	Operation    string `yaml:"operation"`
	Permission   string `yaml:"permission"`
}

func (s bindingSpec) toBinding() (types.AclBinding, error) {
	var b types.AclBinding

	rt, err := types.ParseResourceType(s.ResourceType)
	if err != nil {
		return b, err
	}
	pt, err := types.ParsePatternType(s.PatternType)
	if err != nil {
		return b, err
	}
	principal, err := types.ParsePrincipal(s.Principal)
	if err != nil {
		return b, err
	}
	op, err := types.ParseOperation(s.Operation)
	if err != nil {
		return b, err
	}
	perm, err := types.ParsePermissionType(s.Permission)
	if err != nil {
		return b, err
	}

	host := s.Host
	if host == "" {
		host = types.WildcardHost
	}

	b = types.AclBinding{
		Pattern: types.ResourcePattern{ResourceType: rt, Name: s.Name, PatternType: pt},
		Entry: types.AccessControlEntry{
			Principal:  principal,
			Host:       host,
			Operation:  op,
			Permission: perm,
		},
	}
	return b, b.Validate()
}

// BootstrapLoader reads declarative ACL binding files
type BootstrapLoader struct {
	logger *zap.Logger
}

// NewBootstrapLoader creates a bootstrap binding loader
func NewBootstrapLoader(logger *zap.Logger) *BootstrapLoader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BootstrapLoader{logger: logger}
}

// LoadFile parses one YAML binding file
func (l *BootstrapLoader) LoadFile(path string) ([]types.AclBinding, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read binding file: %w", err)
	}

	var file bindingFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse binding file %s: %w", path, err)
	}

	bindings := make([]types.AclBinding, 0, len(file.Bindings))
	for i, spec := range file.Bindings {
		b, err := spec.toBinding()
		if err != nil {
			return nil, fmt.Errorf("%s: binding %d: %w", path, i, err)
		}
		bindings = append(bindings, b)
	}
	return bindings, nil
}

// LoadDirectory parses every YAML binding file in a directory. Files that
// fail to parse are skipped with a warning so one bad file cannot block the
// rest of the bootstrap set.
func (l *BootstrapLoader) LoadDirectory(path string) ([]types.AclBinding, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read binding directory: %w", err)
	}

	var bindings []types.AclBinding
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		filePath := filepath.Join(path, entry.Name())
		fileBindings, err := l.LoadFile(filePath)
		if err != nil {
			l.logger.Warn("Skipping invalid binding file",
				zap.String("file", filePath),
				zap.Error(err),
			)
			continue
		}
		bindings = append(bindings, fileBindings...)
	}
	return bindings, nil
}
