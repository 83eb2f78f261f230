package config

import (
	"bytes"
	"fmt"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/TabSync/internal/core"
)

// datasetsFile is the layout of SYNC_DATASETS_FILE:
//
//	datasets:
//	  - name: Draft
//	    keyColumn: Candidate ID
//	    group: dashboard
type datasetsFile struct {
	Datasets []core.DatasetDefinition `yaml:"datasets"`
}

// Registry builds the dataset registry: from DatasetsFile when set, else
// from the Datasets list, else the default dashboard tabs. A registry that
// names the audit dataset is rejected.
func (c SyncConfig) Registry(fs afero.Fs) (*core.Registry, error) {
	reg, err := c.registry(fs)
	if err != nil {
		return nil, err
	}
	if _, ok := reg.Get(c.AuditDataset); ok {
		return nil, fmt.Errorf("dataset registry: %w: %q", core.ErrAuditDatasetName, c.AuditDataset)
	}
	return reg, nil
}

func (c SyncConfig) registry(fs afero.Fs) (*core.Registry, error) {
	if c.DatasetsFile != "" {
		data, err := afero.ReadFile(fs, c.DatasetsFile)
		if err != nil {
			return nil, fmt.Errorf("read datasets file: %w", err)
		}
		return ParseDatasets(data)
	}

	if len(c.Datasets) > 0 {
		defs := make([]core.DatasetDefinition, 0, len(c.Datasets))
		for _, name := range c.Datasets {
			defs = append(defs, core.DatasetDefinition{Name: name})
		}
		return core.NewRegistry(defs...)
	}

	return core.DefaultRegistry(), nil
}

// ParseDatasets decodes a YAML dataset registry. Unknown fields are rejected
// so typos like "keycolumn" surface at startup.
func ParseDatasets(data []byte) (*core.Registry, error) {
	var f datasetsFile

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse datasets file: %w", err)
	}
	if len(f.Datasets) == 0 {
		return nil, fmt.Errorf("parse datasets file: no datasets defined")
	}

	reg, err := core.NewRegistry(f.Datasets...)
	if err != nil {
		return nil, fmt.Errorf("parse datasets file: %w", err)
	}
	return reg, nil
}
