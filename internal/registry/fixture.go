package registry

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/program-extract/internal/model"
)

type fieldsFixture struct {
	Fields []model.Field `yaml:"fields"`
}

// LoadFieldsFromFile reads a YAML field list from path. Fields present in
// the file replace the built-in definition with the same id; new ids are
// appended after the built-in fields.
func LoadFieldsFromFile(path string) (*model.FieldRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "registry: read fields fixture")
	}

	var fx fieldsFixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, eris.Wrap(err, "registry: unmarshal fields fixture")
	}
	for _, f := range fx.Fields {
		if f.ID == "" {
			return nil, eris.New("registry: field without id in fixture")
		}
	}

	return model.NewFieldRegistry(mergeFields(DefaultFields(), fx.Fields)), nil
}

// Load returns the built-in registry, overlaid with path when it is set.
func Load(path string) (*model.FieldRegistry, error) {
	if path == "" {
		return Default(), nil
	}
	return LoadFieldsFromFile(path)
}

func mergeFields(base, overlay []model.Field) []model.Field {
	idx := make(map[string]int, len(base))
	for i, f := range base {
		idx[f.ID] = i
	}
	out := append([]model.Field(nil), base...)
	for _, f := range overlay {
		if i, ok := idx[f.ID]; ok {
			out[i] = f
			continue
		}
		idx[f.ID] = len(out)
		out = append(out, f)
	}
	return out
}
