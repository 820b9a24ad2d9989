package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	modulesKey = "modules"
	motdKey    = "motd"
)

// Catalog is the typed view of the daemon's modules and MOTD on top of a
// Store.
type Catalog struct {
	store Store
}

func NewCatalog(store Store) *Catalog {
	return &Catalog{store: store}
}

func (c *Catalog) Store() Store {
	return c.store
}

// Put adds or replaces a module.
func (c *Catalog) Put(ctx context.Context, module Module) error {
	if err := module.Validate(); err != nil {
		return err
	}

	if err := c.store.Set(ctx, moduleWriteKey(module.Name), module); err != nil {
		return fmt.Errorf("Failed to store module %s: %w", module.Name, err)
	}

	return nil
}

func (c *Catalog) Remove(ctx context.Context, name string) error {
	if err := ValidateModuleName(name); err != nil {
		return err
	}

	return c.store.Delete(ctx, moduleWriteKey(name))
}

// Module looks a module up by name. Unknown names return ErrModuleNotFound.
func (c *Catalog) Module(ctx context.Context, name string) (Module, error) {
	if err := ValidateModuleName(name); err != nil {
		return Module{}, fmt.Errorf("%w: %s", ErrModuleNotFound, err)
	}

	raw, err := c.store.Get(ctx, moduleKey(name))
	if err != nil {
		return Module{}, err
	}

	if len(raw) == 0 {
		return Module{}, fmt.Errorf("%w: %s", ErrModuleNotFound, name)
	}

	var module Module
	if err := json.Unmarshal(raw, &module); err != nil {
		return Module{}, fmt.Errorf("Failed to decode module %s: %w", name, err)
	}

	return module, nil
}

// Modules returns every module sorted by name.
func (c *Catalog) Modules(ctx context.Context) ([]Module, error) {
	raw, err := c.store.Get(ctx, []byte(modulesKey))
	if err != nil {
		return nil, err
	}

	modules := make([]Module, 0)
	if len(raw) == 0 {
		return modules, nil
	}

	var decodeErr error
	gjson.ParseBytes(raw).ForEach(func(key, value gjson.Result) bool {
		var module Module
		if err := json.Unmarshal([]byte(value.Raw), &module); err != nil {
			decodeErr = fmt.Errorf("Failed to decode module %s: %w", key.String(), err)
			return false
		}

		modules = append(modules, module)
		return true
	})

	if decodeErr != nil {
		return nil, decodeErr
	}

	sort.Slice(modules, func(i, j int) bool { return modules[i].Name < modules[j].Name })

	return modules, nil
}

// ListableModules are the modules a #list request shows to host.
func (c *Catalog) ListableModules(ctx context.Context, host string) ([]Module, error) {
	modules, err := c.Modules(ctx)
	if err != nil {
		return nil, err
	}

	listable := modules[:0]
	for _, module := range modules {
		if !module.Listable {
			continue
		}

		ok, err := module.Permits(host)
		if err != nil {
			return nil, err
		}

		if ok {
			listable = append(listable, module)
		}
	}

	return listable, nil
}

func (c *Catalog) SetMOTD(ctx context.Context, lines []string) error {
	if lines == nil {
		lines = []string{}
	}

	return c.store.Set(ctx, []byte(motdKey), lines)
}

func (c *Catalog) MOTD(ctx context.Context) ([]string, error) {
	raw, err := c.store.Get(ctx, []byte(motdKey))
	if err != nil {
		return nil, err
	}

	lines := make([]string, 0)
	for _, line := range gjson.ParseBytes(raw).Array() {
		lines = append(lines, line.String())
	}

	return lines, nil
}

// ListenToUpdates forwards the underlying store's updates.
func (c *Catalog) ListenToUpdates() <-chan *Update {
	return c.store.ListenToUpdates()
}

// IsModuleUpdate reports whether an update touched a module.
func IsModuleUpdate(update *Update) bool {
	return strings.HasPrefix(string(update.Key), modulesKey+".")
}

var keyEscaper = strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`)

func moduleKey(name string) []byte {
	return []byte(modulesKey + "." + keyEscaper.Replace(name))
}

// moduleWriteKey always forces an object key, otherwise sjson turns
// "modules" into an array for names like "2024".
func moduleWriteKey(name string) []byte {
	return []byte(modulesKey + ".:" + keyEscaper.Replace(name))
}
