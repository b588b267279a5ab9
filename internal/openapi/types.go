package openapi

import "github.com/getkin/kin-openapi/openapi3"

// Component schema names.
const (
	SchemaCredential    = "Credential"
	SchemaImageRequest  = "GenerateImageRequest"
	SchemaImageResponse = "GenerateImageResponse"
	SchemaError         = "ErrorResponse"
	SchemaStatus        = "Status"
)

func schemaRef(name string) *openapi3.SchemaRef {
	return openapi3.NewSchemaRef("#/components/schemas/"+name, nil)
}

func stringProp(description string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{
		Type:        &openapi3.Types{"string"},
		Description: description,
	}}
}

// componentSchemas returns the schemas of every JSON body the gateway reads
// or writes. They mirror the types in internal/model.
func componentSchemas() openapi3.Schemas {
	return openapi3.Schemas{
		SchemaCredential: &openapi3.SchemaRef{Value: &openapi3.Schema{
			Type:     &openapi3.Types{"object"},
			Required: []string{"key", "key_id"},
			Properties: openapi3.Schemas{
				"key":    stringProp("Bearer secret of the issued API key."),
				"key_id": stringProp("Identifier of the key record."),
			},
		}},

		SchemaImageRequest: &openapi3.SchemaRef{Value: &openapi3.Schema{
			Type:     &openapi3.Types{"object"},
			Required: []string{"prompt"},
			Properties: openapi3.Schemas{
				"prompt": stringProp("Text prompt forwarded unchanged to the image backend."),
			},
		}},

		SchemaImageResponse: &openapi3.SchemaRef{Value: &openapi3.Schema{
			Type:     &openapi3.Types{"object"},
			Required: []string{"image_url", "remaining_calls"},
			Properties: openapi3.Schemas{
				"image_url": &openapi3.SchemaRef{Value: &openapi3.Schema{
					Type:   &openapi3.Types{"string"},
					Format: "uri",
				}},
				"remaining_calls": &openapi3.SchemaRef{Value: &openapi3.Schema{
					Type:        &openapi3.Types{"integer"},
					Format:      "int32",
					Nullable:    true,
					Description: "Quota left as reported by the verification that preceded this call. Null when the key has no quota.",
				}},
			},
		}},

		SchemaError: &openapi3.SchemaRef{Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"error": &openapi3.SchemaRef{Value: &openapi3.Schema{
					Type: &openapi3.Types{"object"},
					Properties: openapi3.Schemas{
						"code":    &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}},
						"message": stringProp(""),
					},
				}},
			},
		}},

		SchemaStatus: &openapi3.SchemaRef{Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"status": stringProp(""),
				"checks": &openapi3.SchemaRef{Value: &openapi3.Schema{
					Type:                 &openapi3.Types{"object"},
					AdditionalProperties: openapi3.AdditionalProperties{Schema: stringProp("")},
				}},
			},
		}},
	}
}
