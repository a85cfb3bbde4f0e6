package separation

import (
	"embed"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/veedubyou/stemsplit/src/shared/failure"
	"github.com/veedubyou/stemsplit/src/shared/lib/cerr"
)

const DefaultModelName = "bandsplit-4stems"

//go:embed models/*.toml
var builtinModels embed.FS

func BuiltinNames() []string {
	entries, err := builtinModels.ReadDir("models")
	if err != nil {
		panic("embedded model catalog is unreadable: " + err.Error())
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, strings.TrimSuffix(entry.Name(), ".toml"))
	}

	sort.Strings(names)
	return names
}

// LoadModel resolves nameOrPath against the built-in catalog first and
// falls back to reading it as a file.
func LoadModel(nameOrPath string) (*Model, error) {
	if nameOrPath == "" {
		nameOrPath = DefaultModelName
	}

	errctx := cerr.Field("model", nameOrPath)

	data, err := builtinModels.ReadFile(path.Join("models", nameOrPath+".toml"))
	if err != nil {
		data, err = os.ReadFile(nameOrPath)
		if err != nil {
			return nil, failure.Wrap(errctx.Wrap(err).Error("Failed to find model"),
				failure.ModelUnavailable, "model "+nameOrPath+" is not available")
		}
	}

	model, err := ParseModel(data)
	if err != nil {
		return nil, errctx.Wrap(err).Error("Failed to load model")
	}

	return model, nil
}
