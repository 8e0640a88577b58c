package endpoints

import (
	"github.com/stitch-works/stitch/internal/api"
)

// All returns all endpoint instances.
func All() []api.Endpoint {
	return []api.Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&ReadyEndpoint{},

		// Document endpoints
		&IngestDocumentEndpoint{},
		&ListDocumentsEndpoint{},
		&GetDocumentEndpoint{},
		&DeleteDocumentEndpoint{},

		// Chunk endpoints
		&ListChunksEndpoint{},
		&ValidateChunkEndpoint{},
		&CorrectChunkEndpoint{},

		// Reconciliation endpoints
		&ReconcileDocumentEndpoint{},
		&VerifyDocumentEndpoint{},

		// Connection endpoints
		&ListConnectionsEndpoint{},
		&ReprocessConnectionsEndpoint{},
		&ConnectionFeedbackEndpoint{},

		// Job endpoints
		&ListJobsEndpoint{},
		&GetJobEndpoint{},
		&CancelJobEndpoint{},

		// Settings endpoints
		&ListSettingsEndpoint{},
		&GetSettingEndpoint{},
		&UpdateSettingEndpoint{},
		&ResetSettingEndpoint{},
	}
}
