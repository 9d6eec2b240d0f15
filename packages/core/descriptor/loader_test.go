package descriptor

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/ddtspec/packages/core/failure"
)

const petshopYAML = `
- config:
    SERVICE_URL: http://localhost/petshop
    PET_URL: ${SERVICE_URL}/pet
- schema: Pet
  type: object
  required: [id, name, photoUrls]
  properties:
    id: {type: integer}
    name: {type: string}
    photoUrls: {type: array, items: {type: string}}
- handler: petHandler
  validate: "equal(response.body.photoUrls, ['url1', 'url2'], 'Wrong photo urls')"
- beforeAll: login
  url: ${SERVICE_URL}/user/login
  status: 200
- test: create and update a pet
  handler: petHandler
  before:
    before: Create a Pet
    url: ${PET_URL}
    method: post
    options:
      body: {id: 1017, name: doggie}
    status: 201
  data:
    method: get
    url: ${PET_URL}/${before['Create a Pet'].body.id}
  after:
    - after: Delete the Pet
      url: ${PET_URL}/1017
      method: DELETE
    - after: Pet is gone
      url: ${PET_URL}/1017
      status: 404
  asserts:
    status: [200, 409]
    schema: Pet
    headers:
      content-type: json
    verifypath:
      - path: $.id
        expect: value[0] == 1017
    responsetime: 500
- test: get the pet
  data:
    url: ${PET_URL}/1017
    dependson: create and update a pet
  status: 200
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_YAML(t *testing.T) {
	doc, err := Load(writeFile(t, "pets.yaml", petshopYAML))
	require.NoError(t, err)

	require.Len(t, doc.Config, 2)
	assert.Equal(t, "SERVICE_URL", doc.Config[0].Name)
	assert.Equal(t, "PET_URL", doc.Config[1].Name)

	require.Contains(t, doc.Schemas, "Pet")
	assert.NotContains(t, doc.Schemas["Pet"], "schema")

	require.Contains(t, doc.Handlers, "petHandler")
	assert.Contains(t, doc.Handlers["petHandler"].Validate, "Wrong photo urls")

	require.Len(t, doc.BeforeAll, 1)
	assert.Equal(t, "login", doc.BeforeAll[0].ID)
	assert.Equal(t, []int{200}, doc.BeforeAll[0].Status.Codes)

	require.Len(t, doc.Cases, 2)
	c := doc.Cases[0]
	assert.Equal(t, "create and update a pet", c.Name)
	assert.Equal(t, "GET", c.Data.Method)
	assert.Equal(t, "petHandler", c.Handler)

	require.Len(t, c.Before, 1)
	assert.Equal(t, "Create a Pet", c.Before[0].ID)
	assert.Equal(t, "POST", c.Before[0].Method)
	assert.Equal(t, PhaseBefore, c.Before[0].Phase)

	require.Len(t, c.After, 2)
	assert.Equal(t, "Delete the Pet", c.After[0].ID)
	assert.Equal(t, "GET", c.After[1].Method)
	assert.Equal(t, []int{404}, c.After[1].Status.Codes)

	require.NotNil(t, c.Asserts)
	assert.Equal(t, &StatusExpectation{Codes: []int{200, 409}, List: true}, c.Asserts.Status)
	name, ok := c.Asserts.SchemaName()
	assert.True(t, ok)
	assert.Equal(t, "Pet", name)
	assert.Equal(t, []HeaderCheck{{Name: "content-type", Pattern: "json"}}, c.Asserts.Headers)
	assert.Equal(t, []PathCheck{{Path: "$.id", Expect: "value[0] == 1017"}}, c.Asserts.VerifyPath)
	assert.Equal(t, 500, c.Asserts.ResponseTime)

	assert.Equal(t, "create and update a pet", doc.Cases[1].Data.DependsOn)
	assert.Equal(t, map[string]bool{"create and update a pet": true}, doc.DependencyTargets())

	assert.Empty(t, doc.Problems)
	assert.NoError(t, doc.Check(nil))
}

func TestLoad_JSONKeepsConfigOrder(t *testing.T) {
	path := writeFile(t, "order.json", `[
		{"config": {"Z": "1", "A": "${Z}2", "M": "${A}3"}},
		{"test": "t", "data": {"url": "${M}"}}
	]`)

	doc, err := Load(path)
	require.NoError(t, err)
	require.Len(t, doc.Config, 3)
	assert.Equal(t, "Z", doc.Config[0].Name)
	assert.Equal(t, "A", doc.Config[1].Name)
	assert.Equal(t, "M", doc.Config[2].Name)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantMsg string
	}{
		{"unsupported extension", "pets.txt", "[]", "unsupported descriptor type"},
		{"broken json", "pets.json", `[{"test": }]`, "invalid character"},
		{"broken yaml", "pets.yaml", "- test: [unclosed", "pets.yaml"},
		{"not a list", "pets.yaml", "test: x", "descriptor must be a list of blocks"},
		{"json object", "pets.json", `{"test": "x"}`, "descriptor must be a list of blocks"},
		{"unknown block", "pets.json", `[{"foo": 1}]`, "block 0 has no recognised kind"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.content)
			_, err := Load(path)
			require.Error(t, err)

			var loadErr *failure.LoadError
			require.True(t, errors.As(err, &loadErr))
			assert.Equal(t, path, loadErr.Path)
			assert.Contains(t, err.Error(), tt.wantMsg)
			assert.Contains(t, err.Error(), path)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	var loadErr *failure.LoadError
	assert.ErrorAs(t, err, &loadErr)
}

func TestParse_DuplicateNames(t *testing.T) {
	doc, err := Parse([]byte(`[
		{"test": "list pets", "data": {"url": "/a"}},
		{"test": "list pets", "data": {"url": "/b"}}
	]`), "dup.json")
	require.NoError(t, err)
	assert.Equal(t, "list pets", doc.Cases[0].Name)
	assert.Equal(t, "list pets (2)", doc.Cases[1].Name)
	assert.Equal(t, "list pets", doc.Cases[1].Declared)

	_, err = Parse([]byte(`[
		{"test": "list pets", "data": {"url": "/a"}},
		{"test": "list pets", "data": {"url": "/b"}},
		{"test": "list pets", "data": {"url": "/c"}}
	]`), "dup.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate test name "list pets"`)
}

func TestParse_Selection(t *testing.T) {
	doc, err := Parse([]byte(`[
		{"test": "a", "data": {"url": "/a"}},
		{"test": "b", "data": {"url": "/b"}, "only": true},
		{"test": "c", "data": {"url": "/c"}}
	]`), "only.json")
	require.NoError(t, err)
	assert.False(t, doc.Cases[0].Exclusive)
	assert.True(t, doc.Cases[1].Exclusive)
	assert.False(t, doc.Cases[2].Exclusive)
	assert.True(t, doc.HasExclusive())
	assert.False(t, doc.SkipAll)

	doc, err = Parse([]byte(`[
		{"test": "a", "data": {"url": "/a"}},
		{"test": "b", "data": {"url": "/b"}, "onlyall": true}
	]`), "onlyall.json")
	require.NoError(t, err)
	assert.True(t, doc.Cases[0].Exclusive)
	assert.True(t, doc.Cases[1].Exclusive)

	doc, err = Parse([]byte(`[
		{"test": "a", "data": {"url": "/a"}},
		{"test": "b", "data": {"url": "/b"}, "skipall": true}
	]`), "skip.json")
	require.NoError(t, err)
	assert.True(t, doc.SkipAll)
}

func TestParse_HookShapes(t *testing.T) {
	doc, err := Parse([]byte(`[
		{"beforeEach": "token", "script": "'abc'"},
		{"afterEach": "cleanup", "sql": {"db": "sqlite://x.db", "query": "DELETE FROM pets"}},
		{"test": "t", "data": {"url": "/t"}, "before": "1 + 1", "after": [{"id": "named", "after": "ignored", "script": "true"}]}
	]`), "hooks.json")
	require.NoError(t, err)

	require.Len(t, doc.BeforeEach, 1)
	assert.Equal(t, "token", doc.BeforeEach[0].ID)
	assert.Equal(t, "'abc'", doc.BeforeEach[0].Script)

	require.Len(t, doc.AfterEach, 1)
	assert.Equal(t, &SQLStep{DB: "sqlite://x.db", Query: "DELETE FROM pets"}, doc.AfterEach[0].SQL)

	c := doc.Cases[0]
	require.Len(t, c.Before, 1)
	assert.Equal(t, "before #0", c.Before[0].ID)
	assert.Equal(t, "1 + 1", c.Before[0].Script)
	require.Len(t, c.After, 1)
	assert.Equal(t, "named", c.After[0].ID)
}

func TestCheck_ConfigurationErrors(t *testing.T) {
	doc, err := Parse([]byte(`[
		{"test": "no url", "data": {"method": "GET"}},
		{"test": "bad handler", "data": {"url": "/x"}, "handler": "ghost"},
		{"test": "bad schema", "data": {"url": "/x"}, "asserts": {"schema": "Ghost"}},
		{"test": "bad status", "data": {"url": "/x"}, "status": "abc"},
		{"test": "registered", "data": {"url": "/x"}, "handler": "goHandler"}
	]`), "broken.json")
	require.NoError(t, err)

	err = doc.Check(func(name string) bool { return name == "goHandler" })
	require.Error(t, err)

	var cfgErr *failure.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "broken.json", cfgErr.File)

	joined := cfgErr.Error()
	assert.Contains(t, joined, `test "no url": data: url is required`)
	assert.Contains(t, joined, "handler ghost is not defined")
	assert.Contains(t, joined, "schema Ghost is not defined")
	assert.Contains(t, joined, "status abc is not a number")
	assert.NotContains(t, joined, "goHandler")
}

func TestCaseSchema(t *testing.T) {
	s := CaseSchema()
	require.NotNil(t, s)
	assert.Equal(t, "ddtspec test case", s.Title)
	assert.Contains(t, s.Required, "test")
	assert.Contains(t, s.Required, "data")
}

func TestParse_BlockKinds(t *testing.T) {
	tests := []struct {
		name  string
		block string
		want  Kind
	}{
		{name: "case", block: `{"test": "t", "data": {"url": "/t"}}`, want: KindTest},
		{name: "case with handler", block: `{"test": "t", "handler": "checkPhotos", "data": {"url": "/t"}}`, want: KindTest},
		{name: "case with schema and config keys", block: `{"test": "t", "schema": "Pet", "config": {}, "data": {"url": "/t"}}`, want: KindTest},
		{name: "handler", block: `{"handler": "checkPhotos", "validate": "true"}`, want: KindHandler},
		{name: "schema", block: `{"schema": "Pet", "type": "object"}`, want: KindSchema},
		{name: "config", block: `{"config": {"A": 1}}`, want: KindConfig},
		{name: "beforeAll", block: `{"beforeAll": "login", "script": "1"}`, want: KindBeforeAll},
		{name: "afterEach", block: `{"afterEach": "cleanup", "script": "1"}`, want: KindAfterEach},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Parse([]byte("["+tt.block+"]"), "kinds.json")
			require.NoError(t, err)
			require.Len(t, doc.Blocks, 1)
			assert.Equal(t, tt.want, doc.Blocks[0].Kind)
		})
	}
}

func TestParse_CaseReferencingHandler(t *testing.T) {
	doc, err := Parse([]byte(`[
		{"handler": "checkPhotos", "validate": "equal(1, 2)"},
		{"test": "photos", "handler": "checkPhotos", "data": {"url": "/pet/1"}}
	]`), "photos.json")
	require.NoError(t, err)

	require.Len(t, doc.Cases, 1)
	assert.Equal(t, "photos", doc.Cases[0].Name)
	assert.Equal(t, "checkPhotos", doc.Cases[0].Handler)

	require.Contains(t, doc.Handlers, "checkPhotos")
	assert.Equal(t, "equal(1, 2)", doc.Handlers["checkPhotos"].Validate)
	assert.NoError(t, doc.Check(nil))
}
