package storage

import (
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"strings"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// ModulesFile is the on-disk description of what a daemon exports:
//
//	motd: |
//	  Welcome to the mirror
//	modules:
//	  - name: pub
//	    path: /srv/pub
//	    comment: Public files
//	    hosts_allow: ["10.*", "127.0.0.1"]
type ModulesFile struct {
	MOTD    string       `yaml:"motd"`
	Modules []FileModule `yaml:"modules"`
}

type FileModule struct {
	Name    string `yaml:"name"`
	Path    string `yaml:"path"`
	Comment string `yaml:"comment"`

	// List defaults to true when omitted.
	List     *bool `yaml:"list"`
	ReadOnly *bool `yaml:"read_only"`

	HostsAllow []string `yaml:"hosts_allow"`
	HostsDeny  []string `yaml:"hosts_deny"`
	AuthUsers  []string `yaml:"auth_users"`

	MaxConnections int `yaml:"max_connections"`
}

func (f FileModule) Module() Module {
	listable, readOnly := true, true
	if f.List != nil {
		listable = *f.List
	}
	if f.ReadOnly != nil {
		readOnly = *f.ReadOnly
	}

	return Module{
		Name:       f.Name,
		Path:       f.Path,
		Comment:    f.Comment,
		Listable:   listable,
		ReadOnly:   readOnly,
		HostsAllow: f.HostsAllow,
		HostsDeny:  f.HostsDeny,
		AuthUsers:  f.AuthUsers,

		MaxConnections: f.MaxConnections,
	}
}

func ParseModulesFile(data []byte) (*ModulesFile, error) {
	var file ModulesFile

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("Failed to parse modules file: %w", err)
	}

	return &file, nil
}

func LoadModulesFile(path string) (*ModulesFile, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return ParseModulesFile(data)
}

// MOTDLines splits the MOTD into the lines sent to clients.
func (f *ModulesFile) MOTDLines() []string {
	motd := strings.TrimRight(f.MOTD, "\n")
	if motd == "" {
		return []string{}
	}

	return strings.Split(motd, "\n")
}

// Apply writes the file's MOTD and modules into the catalog. Every module is
// attempted; the returned error combines all failures.
func (f *ModulesFile) Apply(ctx context.Context, catalog *Catalog) (err error) {
	seen := make(map[string]struct{}, len(f.Modules))

	for _, fm := range f.Modules {
		if _, dup := seen[fm.Name]; dup {
			err = multierr.Append(err, fmt.Errorf("duplicate module %q", fm.Name))
			continue
		}
		seen[fm.Name] = struct{}{}

		err = multierr.Append(err, catalog.Put(ctx, fm.Module()))
	}

	return multierr.Append(err, catalog.SetMOTD(ctx, f.MOTDLines()))
}
