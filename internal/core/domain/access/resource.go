package access

// Resource names a protectable area of the dashboard ("page").
type Resource string

const (
	ResourceAnimals   Resource = "animals"
	ResourceFeeding   Resource = "feeding"
	ResourceBreeding  Resource = "breeding"
	ResourceSales     Resource = "sales"
	ResourceLocations Resource = "locations"
	ResourceUsers     Resource = "users"
	ResourceSettings  Resource = "settings"
)

// RegistryVersion is bumped whenever a resource is added or removed.
// Route tables declare the version they were written against.
const RegistryVersion = 1

var registry = [...]Resource{
	ResourceAnimals,
	ResourceFeeding,
	ResourceBreeding,
	ResourceSales,
	ResourceLocations,
	ResourceUsers,
	ResourceSettings,
}

// Resources returns the registry in its canonical order.
func Resources() []Resource {
	out := make([]Resource, len(registry))
	copy(out, registry[:])
	return out
}

func (r Resource) String() string {
	return string(r)
}

func (r Resource) IsValid() bool {
	return r.index() >= 0
}

// index is the registry position, or -1 for unknown resources.
func (r Resource) index() int {
	for i, known := range registry {
		if known == r {
			return i
		}
	}
	return -1
}

func ParseResource(s string) (Resource, bool) {
	r := Resource(s)
	return r, r.IsValid()
}
