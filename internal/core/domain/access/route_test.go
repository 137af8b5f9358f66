package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTable = `
version: 1
routes:
  - {method: GET, path: /api/v1/me/access, authenticated_only: true}
  - {method: get, path: /api/v1/animals, resource: animals, verb: view}
  - {method: DELETE, path: "/api/v1/animals/:id", resource: animals, verb: delete}
`

func TestParseRouteTable(t *testing.T) {
	rt, err := ParseRouteTable([]byte(sampleTable))
	require.NoError(t, err)
	assert.Equal(t, 3, rt.Len())
	assert.Equal(t, RegistryVersion, rt.Version())

	target, ok := rt.Lookup("GET", "/api/v1/animals")
	require.True(t, ok)
	assert.Equal(t, ResourceAnimals, target.Resource)
	assert.Equal(t, VerbView, target.Verb)

	target, ok = rt.Lookup("delete", "/api/v1/animals/:id")
	require.True(t, ok)
	assert.Equal(t, VerbDelete, target.Verb)

	target, ok = rt.Lookup("GET", "/api/v1/me/access")
	require.True(t, ok)
	assert.True(t, target.AuthenticatedOnly)

	_, ok = rt.Lookup("POST", "/api/v1/animals")
	assert.False(t, ok, "unmapped method must miss")
	_, ok = rt.Lookup("GET", "/api/v1/animals/42")
	assert.False(t, ok, "lookups use route patterns, not concrete paths")
}

func TestParseRouteTable_Rejects(t *testing.T) {
	cases := map[string]string{
		"version mismatch": "version: 2\nroutes: []\n",
		"unknown resource": "version: 1\nroutes:\n  - {method: GET, path: /x, resource: reports, verb: view}\n",
		"unknown verb":     "version: 1\nroutes:\n  - {method: GET, path: /x, resource: animals, verb: approve}\n",
		"no resource":      "version: 1\nroutes:\n  - {method: GET, path: /x}\n",
		"duplicate": "version: 1\nroutes:\n" +
			"  - {method: GET, path: /x, resource: animals, verb: view}\n" +
			"  - {method: GET, path: /x, resource: sales, verb: view}\n",
		"bad method":              "version: 1\nroutes:\n  - {method: FETCH, path: /x, resource: animals, verb: view}\n",
		"relative path":           "version: 1\nroutes:\n  - {method: GET, path: x, resource: animals, verb: view}\n",
		"auth only with resource": "version: 1\nroutes:\n  - {method: GET, path: /x, resource: animals, verb: view, authenticated_only: true}\n",
		"malformed yaml":          "version: [\n",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRouteTable([]byte(src))
			require.Error(t, err)
		})
	}
}

func TestNilRouteTableMisses(t *testing.T) {
	var rt *RouteTable
	_, ok := rt.Lookup("GET", "/")
	assert.False(t, ok)
	assert.Equal(t, 0, rt.Len())
}
