package content

import (
	"strconv"

	"github.com/atlasmeta/contentdex/internal/domain/index"
)

// fieldDoc holds the full document inside the stored JSON; the indexed fields
// sit next to it, flattened to what RediSearch can index.
const fieldDoc = "doc"

// Sub-document fields copied from the parent so joins can be narrowed by the
// parent's top-level filters.
const (
	fieldParentPublisher = "parent_publisher"
	fieldParentActive    = "parent_active"
)

func toStored(doc *index.Document) map[string]any {
	m := flatten(doc.Field, index.Fields(""))
	m[fieldDoc] = doc
	return m
}

func toChild(parent *index.Document, get index.Getter, scope string) map[string]any {
	m := flatten(get, index.Fields(scope))
	m[index.FieldParent] = parent.ID.String()
	m[fieldParentPublisher] = string(parent.Publisher)
	m[fieldParentActive] = strconv.FormatBool(parent.Active)
	return m
}

// flatten renders every present field: numbers as JSON numbers, multi-valued
// tags as arrays and everything else as a plain string.
func flatten(get index.Getter, specs []index.FieldSpec) map[string]any {
	m := make(map[string]any, len(specs)+1)
	for _, f := range specs {
		v, ok := get(f.Name)
		if !ok {
			continue
		}
		switch {
		case v.IsNum:
			m[f.Name] = v.Num
		case f.Multi:
			m[f.Name] = v.Tags
		case len(v.Tags) > 0:
			m[f.Name] = v.Tags[0]
		}
	}
	return m
}
