// Package docs provides generated OpenAPI documentation.
//
// Stitch API
//
//	@title			Stitch API
//	@version		1.0
//	@description	Chunk-offset reconciliation and connection detection API for managing documents, chunks, and background jobs.
//	@termsOfService	http://swagger.io/terms/
//
//	@contact.name	API Support
//	@contact.url	https://github.com/stitch-works/stitch
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host		localhost:8080
//	@BasePath	/
//
//	@schemes	http https
package docs

//go:generate swag init -g ../cmd/stitch/serve.go -o ./swagger --parseDependency --parseInternal
