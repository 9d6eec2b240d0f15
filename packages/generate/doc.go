// Package generate turns an OpenAPI 3 document into descriptor files.
//
// One YAML descriptor is written per tag. Each file starts with a config
// block defining SERVICE_URL, holds one test per operation carrying that
// tag, and ends with the component schemas its responses refer to:
//
//	- config:
//	    SERVICE_URL: https://petstore.local/v2
//	- test: Find pet by ID
//	  data:
//	    url: ${SERVICE_URL}/pet/${test.data.parameters.petId}
//	    method: GET
//	    parameters:
//	      petId: 1
//	  asserts:
//	    status: 200
//	    schema: Pet
//	    responsetime: 10000
//	- schema: Pet
//	  type: object
//
// Request bodies are synthesized from the operation's schema, preferring
// declared examples and defaults.
package generate
