package plugin

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/Karniz-UI/NewEraV4Fix/pkg/commands"
)

// Inspect admits src into a throwaway registry and reports what it would
// register. Nothing is written to disk and teardown is not run.
func Inspect(ctx context.Context, rt Runtime, prefix, name string, src []byte) (Info, error) {
	if err := ValidateName(name); err != nil {
		return Info{}, err
	}
	unit, err := rt.Compile(ctx, name, src)
	if err != nil {
		return Info{}, err
	}
	defer unit.Close()

	host := newHost(name, prefix, nil)
	manifest, err := safeRegister(ctx, unit, host)
	if err != nil {
		return Info{}, err
	}
	defs := host.seal()
	if err := commands.NewRegistry(prefix).RegisterAll(name, defs); err != nil {
		return Info{}, fmt.Errorf("register plugin %q: %w", name, err)
	}

	sum := sha256.Sum256(src)
	return Info{
		Name:     name,
		Checksum: hex.EncodeToString(sum[:]),
		Manifest: manifest,
		Commands: triggers(defs),
	}, nil
}
