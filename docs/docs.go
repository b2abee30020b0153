// Package docs содержит OpenAPI описание API сессий, которое отдаётся
// по /swagger/doc.json.
package docs

import _ "embed"

//go:embed swagger.json
var SwaggerJSON []byte
